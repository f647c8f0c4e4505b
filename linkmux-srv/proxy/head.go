package proxy

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// maxHeadBytes is how much of the initial client request is read and parsed.
const maxHeadBytes = 8192

// RequestHead is the parsed first request of a client connection. Raw holds
// the bytes exactly as read; for non-CONNECT sessions they are replayed
// verbatim to the origin.
type RequestHead struct {
	Method string
	Host   string
	Port   int
	Raw    []byte
}

// IsConnect reports whether the session is a CONNECT tunnel.
func (h *RequestHead) IsConnect() bool {
	return h.Method == http.MethodConnect
}

// ParseRequestHead extracts (method, host, port) from the first bytes read
// off a client connection.
//
// The request line must tokenize as exactly "METHOD URL PROTOCOL". For
// CONNECT the URL is host:port. For everything else the target is taken
// from a literal "Host: " header (port 80), falling back to parsing the URL
// as absolute (explicit port, else 443 for https, else 80).
func ParseRequestHead(data []byte) (*RequestHead, error) {
	text := string(data)

	firstLine, _, _ := strings.Cut(text, "\n")
	firstLine = strings.TrimSpace(firstLine)

	parts := strings.Split(firstLine, " ")
	if len(parts) != 3 {
		return nil, NewProxyError(ErrCodeParseError, "invalid request line: "+firstLine, nil)
	}
	method, rawURL := parts[0], parts[1]

	head := &RequestHead{
		Method: method,
		Raw:    data,
	}

	if method == http.MethodConnect {
		host, portStr, found := strings.Cut(rawURL, ":")
		if !found || host == "" {
			return nil, NewProxyError(ErrCodeParseError, "CONNECT target must be host:port, got "+rawURL, nil)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, NewProxyError(ErrCodeParseError, "invalid CONNECT port: "+portStr, err)
		}
		head.Host = host
		head.Port = port
		return head, nil
	}

	// Quick host extraction from the raw buffer; the scan matches the
	// literal "Host: " form only.
	if idx := strings.Index(text, "Host: "); idx >= 0 {
		rest := text[idx+len("Host: "):]
		value, _, _ := strings.Cut(rest, "\r\n")
		host := strings.TrimSpace(value)
		if host == "" {
			return nil, NewProxyError(ErrCodeParseError, "empty Host header", nil)
		}
		head.Host = host
		head.Port = 80
		return head, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return nil, NewProxyError(ErrCodeParseError, "request target is neither Host header nor absolute URL: "+rawURL, err)
	}
	head.Host = u.Hostname()
	switch {
	case u.Port() != "":
		port, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, NewProxyError(ErrCodeParseError, "invalid URL port: "+u.Port(), err)
		}
		head.Port = port
	case u.Scheme == "https":
		head.Port = 443
	default:
		head.Port = 80
	}
	return head, nil
}
