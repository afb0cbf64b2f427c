package natsrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nats-io/nats.go"
)

// Client calls operations served by a Bridge.
type Client struct {
	Conn   *nats.Conn
	Prefix string
	// Header is copied into every request, e.g. Accept or PrincipalHeader.
	Header nats.Header
}

// Reply is the answer to a call.
type Reply struct {
	Status      int
	ContentType string
	Body        []byte
	Header      nats.Header
}

// Err returns a *CallError for a non-2xx reply.
func (r *Reply) Err() error {
	if r.Status >= 200 && r.Status < 300 {
		return nil
	}
	return &CallError{Status: r.Status, Message: r.Header.Get(ErrorHeader)}
}

// CallError is a failed call.
type CallError struct {
	Status  int
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("natsrpc: %d %s", e.Status, e.Message)
}

// Call invokes verb on path. Non-nil body is sent as JSON; query is sent in
// QueryHeader.
func (c *Client) Call(ctx context.Context, verb, path string, query url.Values, body any) (*Reply, error) {
	prefix := c.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	msg := nats.NewMsg(Subject(prefix, verb, path))
	for k, vs := range c.Header {
		msg.Header[k] = append([]string(nil), vs...)
	}
	if len(query) > 0 {
		msg.Header.Set(QueryHeader, query.Encode())
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("natsrpc: encode body: %w", err)
		}
		msg.Data = data
	}

	resp, err := c.Conn.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("natsrpc: %s %s: %w", verb, path, err)
	}
	status, err := strconv.Atoi(resp.Header.Get(StatusHeader))
	if err != nil {
		status = http.StatusBadGateway
	}
	return &Reply{
		Status:      status,
		ContentType: resp.Header.Get(ContentTypeHeader),
		Body:        resp.Data,
		Header:      resp.Header,
	}, nil
}
