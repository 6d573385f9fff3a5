package ws

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// acceptGUID is the fixed GUID from RFC 6455 section 1.3, appended to
// the client key before hashing.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// maxHeaderBytes bounds the upgrade request head a client may send.
const maxHeaderBytes = 8 * 1024

// Handshake errors.
var (
	ErrRequestTooLarge = errors.New("ws: request head exceeds limit")
	ErrMalformedHead   = errors.New("ws: malformed request head")
	ErrNotWebSocket    = errors.New("ws: not a websocket upgrade request")
)

// AcceptKey computes the Sec-WebSocket-Accept value for a client's
// Sec-WebSocket-Key: base64(SHA-1(key + GUID)).
func AcceptKey(key string) string {
	h := sha1.New()
	io.WriteString(h, key)
	io.WriteString(h, acceptGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Request is a parsed HTTP/1.1 request head. Header names are
// lowercased; repeated headers keep the last value except Connection,
// whose tokens are merged.
type Request struct {
	Method string
	Target string
	Proto  string
	Header map[string]string
}

// Get returns a header value by case-insensitive name.
func (r *Request) Get(name string) string {
	return r.Header[strings.ToLower(name)]
}

// ReadRequest parses an HTTP/1.1 request head from br, up to and
// including the blank line. It reads nothing past the head, so frame
// bytes that follow stay buffered for the frame reader.
func ReadRequest(br *bufio.Reader) (*Request, error) {
	line, err := readHeaderLine(br, maxHeaderBytes)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "HTTP/1.") {
		return nil, fmt.Errorf("%w: %q", ErrMalformedHead, line)
	}
	req := &Request{
		Method: parts[0],
		Target: parts[1],
		Proto:  parts[2],
		Header: make(map[string]string, 16),
	}

	budget := maxHeaderBytes - len(line)
	for {
		line, err := readHeaderLine(br, budget)
		if err != nil {
			return nil, err
		}
		budget -= len(line) + 2
		if line == "" {
			return req, nil
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHead, line)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if name == "connection" && req.Header[name] != "" {
			req.Header[name] += ", " + value
		} else {
			req.Header[name] = value
		}
	}
}

func readHeaderLine(br *bufio.Reader, budget int) (string, error) {
	if budget <= 0 {
		return "", ErrRequestTooLarge
	}
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) > budget {
		return "", ErrRequestTooLarge
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// WebSocketKey validates the upgrade headers and returns the client's
// Sec-WebSocket-Key. It returns ErrNotWebSocket for ordinary HTTP
// requests, which the server answers with the fallback page.
func (r *Request) WebSocketKey() (string, error) {
	if r.Method != "GET" {
		return "", ErrNotWebSocket
	}
	if !strings.EqualFold(r.Get("Upgrade"), "websocket") {
		return "", ErrNotWebSocket
	}
	if !headerContainsToken(r.Get("Connection"), "upgrade") {
		return "", ErrNotWebSocket
	}
	if r.Get("Sec-WebSocket-Version") != "13" {
		return "", fmt.Errorf("%w: unsupported version %q", ErrNotWebSocket, r.Get("Sec-WebSocket-Version"))
	}
	key := r.Get("Sec-WebSocket-Key")
	if key == "" {
		return "", fmt.Errorf("%w: missing key", ErrNotWebSocket)
	}
	return key, nil
}

func headerContainsToken(header, token string) bool {
	for _, part := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// WriteAccept writes the 101 Switching Protocols response completing
// the upgrade.
func WriteAccept(w io.Writer, acceptKey string) error {
	_, err := fmt.Fprintf(w, "HTTP/1.1 101 Switching Protocols\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Accept: %s\r\n\r\n", acceptKey)
	return err
}

// WriteResponse writes a plain HTTP response and signals the peer to
// close, used for the fallback page and handshake rejections.
func WriteResponse(w io.Writer, status int, statusText, contentType string, body []byte) error {
	_, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n"+
		"Content-Type: %s\r\n"+
		"Content-Length: %d\r\n"+
		"Connection: close\r\n\r\n", status, statusText, contentType, len(body))
	if err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
