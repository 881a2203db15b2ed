package handler

import (
	"bytes"
	"errors"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEmptyRequest means the client sent nothing before closing.
	ErrEmptyRequest = errors.New("handler: empty request")

	// ErrMalformedRequest means the first line is not "METHOD PATH VERSION".
	ErrMalformedRequest = errors.New("handler: malformed request line")
)

// Request is the parsed request line. Headers and body are never read.
type Request struct {
	Method  string
	Path    string // percent-decoded
	RawPath string // as sent
	Version string
}

// ParseRequestLine parses the first line of data.
//
// The line ends at the first '\n'; a trailing '\r' is dropped. It must split
// on whitespace into exactly three tokens and be valid UTF-8. The path is
// percent-decoded; a malformed escape keeps the raw path.
func ParseRequestLine(data []byte) (Request, error) {
	if len(data) == 0 {
		return Request{}, ErrEmptyRequest
	}

	line := data
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = bytes.TrimSuffix(line, []byte("\r"))

	if !utf8.Valid(line) {
		return Request{}, ErrMalformedRequest
	}

	fields := strings.Fields(string(line))
	if len(fields) != 3 {
		return Request{}, ErrMalformedRequest
	}

	req := Request{
		Method:  fields[0],
		RawPath: fields[1],
		Path:    fields[1],
		Version: fields[2],
	}
	if decoded, err := url.PathUnescape(fields[1]); err == nil {
		req.Path = decoded
	}
	return req, nil
}

// ResolvePath maps a request path to a slash-separated key relative to the
// static root. ok is false when the path climbs out of the root. The root
// itself resolves to ".", which sources report as a directory.
func ResolvePath(p string) (key string, ok bool) {
	key = path.Clean(strings.TrimLeft(p, "/"))
	if key == ".." || strings.HasPrefix(key, "../") {
		return "", false
	}
	return key, true
}
