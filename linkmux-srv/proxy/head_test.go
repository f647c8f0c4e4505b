package proxy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConnect(t *testing.T) {
	head, err := ParseRequestHead([]byte("CONNECT example.com:443 HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	assert.Equal(t, "CONNECT", head.Method)
	assert.Equal(t, "example.com", head.Host)
	assert.Equal(t, 443, head.Port)
	assert.True(t, head.IsConnect())
}

func TestParseConnectNonStandardPort(t *testing.T) {
	head, err := ParseRequestHead([]byte("CONNECT db.internal:5432 HTTP/1.0\r\n\r\n"))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", head.Host)
	assert.Equal(t, 5432, head.Port)
}

func TestParseHostHeader(t *testing.T) {
	raw := []byte("GET http://example.com/foo HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\n\r\n")
	head, err := ParseRequestHead(raw)
	require.NoError(t, err)

	assert.Equal(t, "GET", head.Method)
	assert.Equal(t, "example.com", head.Host)
	assert.Equal(t, 80, head.Port)
	assert.False(t, head.IsConnect())
	// Raw bytes retained verbatim for replay.
	assert.Equal(t, raw, head.Raw)
}

func TestParseAbsoluteURLFallback(t *testing.T) {
	tests := []struct {
		name string
		line string
		host string
		port int
	}{
		{"https default port", "GET https://example.com/ HTTP/1.1", "example.com", 443},
		{"http default port", "GET http://example.com/path HTTP/1.1", "example.com", 80},
		{"explicit port", "GET http://example.com:8888/x HTTP/1.1", "example.com", 8888},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			head, err := ParseRequestHead([]byte(tt.line + "\r\nAccept: */*\r\n\r\n"))
			require.NoError(t, err)
			assert.Equal(t, tt.host, head.Host)
			assert.Equal(t, tt.port, head.Port)
		})
	}
}

func TestParseHostHeaderTakesPrecedence(t *testing.T) {
	raw := []byte("GET https://other.example:9999/ HTTP/1.1\r\nHost: example.com\r\n\r\n")
	head, err := ParseRequestHead(raw)
	require.NoError(t, err)

	assert.Equal(t, "example.com", head.Host)
	assert.Equal(t, 80, head.Port)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty input", ""},
		{"empty first line", "\r\nHost: example.com\r\n\r\n"},
		{"two tokens", "GET /\r\n\r\n"},
		{"four tokens", "GET  / HTTP/1.1\r\n\r\n"},
		{"connect without port", "CONNECT example.com HTTP/1.1\r\n\r\n"},
		{"connect bad port", "CONNECT example.com:https HTTP/1.1\r\n\r\n"},
		{"no host no url", "GET /relative/path HTTP/1.1\r\nAccept: */*\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequestHead([]byte(tt.data))
			require.Error(t, err)

			var proxyErr *Error
			require.ErrorAs(t, err, &proxyErr)
			assert.Equal(t, ErrCodeParseError, proxyErr.Code)
		})
	}
}

func TestParseLargeHeadWithoutHost(t *testing.T) {
	// An 8 KiB request with neither Host header nor absolute URL must
	// fail as a parse error, not panic or mis-resolve.
	body := "GET /x HTTP/1.1\r\n" + strings.Repeat("X-Pad: aaaaaaaa\r\n", 500)
	data := []byte(body)[:maxHeadBytes]

	_, err := ParseRequestHead(data)
	require.Error(t, err)
}
