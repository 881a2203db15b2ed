package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestLine(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Request
		wantErr error
	}{
		{
			name: "Simple",
			in:   "GET /index.html HTTP/1.1\r\nHost: x\r\n\r\n",
			want: Request{Method: "GET", Path: "/index.html", RawPath: "/index.html", Version: "HTTP/1.1"},
		},
		{
			name: "BareNewline",
			in:   "GET / HTTP/1.0\n",
			want: Request{Method: "GET", Path: "/", RawPath: "/", Version: "HTTP/1.0"},
		},
		{
			name: "NoTerminator",
			in:   "GET /a HTTP/1.1",
			want: Request{Method: "GET", Path: "/a", RawPath: "/a", Version: "HTTP/1.1"},
		},
		{
			name: "ExtraWhitespace",
			in:   "  GET \t /a   HTTP/1.1  \r\n",
			want: Request{Method: "GET", Path: "/a", RawPath: "/a", Version: "HTTP/1.1"},
		},
		{
			name: "PercentDecoded",
			in:   "GET /a%20b/%C3%A9.txt HTTP/1.1\r\n",
			want: Request{Method: "GET", Path: "/a b/é.txt", RawPath: "/a%20b/%C3%A9.txt", Version: "HTTP/1.1"},
		},
		{
			name: "PlusIsLiteral",
			in:   "GET /a+b HTTP/1.1\r\n",
			want: Request{Method: "GET", Path: "/a+b", RawPath: "/a+b", Version: "HTTP/1.1"},
		},
		{
			name: "MalformedEscapeKeepsRaw",
			in:   "GET /100%zz HTTP/1.1\r\n",
			want: Request{Method: "GET", Path: "/100%zz", RawPath: "/100%zz", Version: "HTTP/1.1"},
		},
		{name: "Empty", in: "", wantErr: ErrEmptyRequest},
		{name: "BlankLine", in: "\r\n", wantErr: ErrMalformedRequest},
		{name: "TwoTokens", in: "GET /\r\n", wantErr: ErrMalformedRequest},
		{name: "FourTokens", in: "GET / HTTP/1.1 x\r\n", wantErr: ErrMalformedRequest},
		{name: "InvalidUTF8", in: "GET /\xc3\x28 HTTP/1.1\r\n", wantErr: ErrMalformedRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequestLine([]byte(tt.in))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRequestLine_OnlyFirstLineMatters(t *testing.T) {
	req, err := ParseRequestLine([]byte("GET / HTTP/1.1\r\nX-Bad: \xff\xfe\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "/", req.Path)
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"/index.html", "index.html", true},
		{"/css/site.css", "css/site.css", true},
		{"/", ".", true},
		{"", ".", true},
		{"///a//b/", "a/b", true},
		{"/a/./b", "a/b", true},
		{"/a/../b", "b", true},
		{"/a/..", ".", true},
		{"/..", "", false},
		{"/../etc/passwd", "", false},
		{"/a/../../etc", "", false},
		{"/..foo", "..foo", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ResolvePath(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResponses(t *testing.T) {
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello", string(OK([]byte("hello")).Encode()))
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n", string(OK(nil).Encode()))
	assert.Equal(t, "HTTP/1.1 404 Not Found\r\n\r\nFile Not Found", string(NotFound().Encode()))
	assert.Equal(t, "HTTP/1.1 405 Method Not Allowed\r\n\r\nMethod Not Allowed", string(MethodNotAllowed().Encode()))
	assert.Equal(t, "HTTP/1.1 200 OK\r\n\r\nCache is now enabled.", string(CacheToggled(true).Encode()))
	assert.Equal(t, "HTTP/1.1 200 OK\r\n\r\nCache is now disabled.", string(CacheToggled(false).Encode()))

	custom := Response{Status: 204, Reason: "No Content", Headers: []Header{{"A", "1"}, {"B", "2"}}}
	assert.Equal(t, "HTTP/1.1 204 No Content\r\nA: 1\r\nB: 2\r\n\r\n", string(custom.Encode()))
}
