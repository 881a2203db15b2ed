package handler

import (
	"strconv"
)

// Header is one response header line.
type Header struct {
	Name  string
	Value string
}

// Response is a minimal HTTP/1.1 response. Encode produces the exact bytes
// written to the connection.
type Response struct {
	Status  int
	Reason  string
	Headers []Header
	Body    []byte
}

// Encode serializes the response into a single buffer.
func (r Response) Encode() []byte {
	size := 32 + len(r.Reason) + len(r.Body)
	for _, h := range r.Headers {
		size += len(h.Name) + len(h.Value) + 4
	}

	buf := make([]byte, 0, size)
	buf = append(buf, "HTTP/1.1 "...)
	buf = strconv.AppendInt(buf, int64(r.Status), 10)
	buf = append(buf, ' ')
	buf = append(buf, r.Reason...)
	buf = append(buf, "\r\n"...)
	for _, h := range r.Headers {
		buf = append(buf, h.Name...)
		buf = append(buf, ": "...)
		buf = append(buf, h.Value...)
		buf = append(buf, "\r\n"...)
	}
	buf = append(buf, "\r\n"...)
	buf = append(buf, r.Body...)
	return buf
}

// OK carries file bytes with their length.
func OK(body []byte) Response {
	return Response{
		Status:  200,
		Reason:  "OK",
		Headers: []Header{{Name: "Content-Length", Value: strconv.Itoa(len(body))}},
		Body:    body,
	}
}

func NotFound() Response {
	return Response{Status: 404, Reason: "Not Found", Body: []byte("File Not Found")}
}

func MethodNotAllowed() Response {
	return Response{Status: 405, Reason: "Method Not Allowed", Body: []byte("Method Not Allowed")}
}

// CacheToggled reports the gate state after a toggle.
func CacheToggled(enabled bool) Response {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return Response{Status: 200, Reason: "OK", Body: []byte("Cache is now " + state + ".")}
}
