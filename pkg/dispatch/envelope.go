package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope type discriminators.
const (
	TypeQuery    = "query"
	TypeCommand  = "command"
	TypeResponse = "response"
	TypePush     = "push"
)

// ErrMalformed is returned when a request envelope cannot be parsed.
var ErrMalformed = errors.New("dispatch: malformed request envelope")

// Request is an incoming query or command envelope. The id is echoed
// verbatim in the response; clients use it to correlate replies.
type Request struct {
	ID     *string  `json:"id"`
	Type   string   `json:"type"`
	Target string   `json:"target,omitempty"`
	Action string   `json:"action,omitempty"`
	Params Params   `json:"params,omitempty"`
	Fields []string `json:"fields,omitempty"`
}

// Name returns the routing name of the request: the query target or
// the command action.
func (r *Request) Name() string {
	if r.Type == TypeCommand {
		return r.Action
	}
	return r.Target
}

// ParseRequest decodes a request envelope. Field validation beyond
// JSON well-formedness is the dispatcher's job, so an id present in a
// bad envelope can still be echoed.
func ParseRequest(raw []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &req, nil
}

// Response is the reply to one request. ID is null only when the
// request was too malformed to recover an id.
type Response struct {
	ID      *string         `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Marshal serializes the response envelope.
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// ParseResponse decodes a response envelope, the client-side
// counterpart of Marshal.
func ParseResponse(raw []byte) (*Response, error) {
	var res Response
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &res, nil
}

// Push is a server-initiated envelope announcing a scene change. Its
// id is always null.
type Push struct {
	ID    *string         `json:"id"`
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Result is everything one request produces: the response envelope
// and, for binary queries, the payload to send right after it.
type Result struct {
	Response *Response
	Binary   []byte
}

func okResult(id *string, data any) *Result {
	raw, err := json.Marshal(data)
	if err != nil {
		return errorResult(id, fmt.Sprintf("encoding response data: %v", err))
	}
	return &Result{Response: &Response{ID: id, Type: TypeResponse, Success: true, Data: raw}}
}

func errorResult(id *string, msg string) *Result {
	return &Result{Response: &Response{ID: id, Type: TypeResponse, Success: false, Error: msg}}
}
