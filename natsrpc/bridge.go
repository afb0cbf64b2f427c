// Package natsrpc serves the operations of an rpc.Dispatcher over NATS
// request/reply.
//
// An operation is addressed by subject: "<prefix>.<VERB>.<segment>..."
// calls VERB on "/segment/...", so "rpc.GET.items.7" calls GET /items/7.
// The payload is a JSON object or array bound like an HTTP JSON body, and
// the QueryHeader header may carry URL-encoded arguments. Replies set the
// StatusHeader header to the HTTP status the call would have had over
// HTTP, and ErrorHeader to the message of a failed call.
package natsrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/mnehpets/httprpc/codec"
	"github.com/mnehpets/httprpc/endpoint"
	"github.com/mnehpets/httprpc/rpc"
)

// Header names used on requests and replies.
const (
	StatusHeader      = "Rpc-Status"
	ErrorHeader       = endpoint.ErrorTrailer
	QueryHeader       = "Rpc-Query"
	PrincipalHeader   = "Rpc-Principal"
	RequestIDHeader   = "X-Request-Id"
	ContentTypeHeader = "Content-Type"
)

const (
	DefaultPrefix  = "rpc"
	DefaultQueue   = "httprpc"
	DefaultTimeout = 30 * time.Second
)

// Bridge subscribes to "<Prefix>.>" and answers each request by dispatching
// it. Members of the same Queue share the load.
type Bridge struct {
	Conn       *nats.Conn
	Dispatcher *rpc.Dispatcher
	Prefix     string
	Queue      string
	Codecs     *codec.Set
	Timeout    time.Duration
	Logger     *zap.Logger

	// Identify, when set, resolves the caller from the request headers.
	// Requests it rejects are answered with 401.
	Identify func(h nats.Header) (rpc.Principal, bool, error)

	// Locales, when set, negotiates rpc.Locale from Accept-Language.
	Locales []language.Tag
	matcher language.Matcher
}

// NewBridge returns a Bridge with the default prefix, queue and timeout.
func NewBridge(nc *nats.Conn, d *rpc.Dispatcher) *Bridge {
	return &Bridge{
		Conn:       nc,
		Dispatcher: d,
		Prefix:     DefaultPrefix,
		Queue:      DefaultQueue,
		Codecs:     codec.DefaultSet(),
		Timeout:    DefaultTimeout,
	}
}

// Subscribe starts answering requests. The caller drains or unsubscribes
// the returned subscription.
func (b *Bridge) Subscribe(ctx context.Context) (*nats.Subscription, error) {
	if b.Conn == nil || b.Dispatcher == nil {
		return nil, errors.New("natsrpc: bridge requires a connection and a dispatcher")
	}
	if len(b.Locales) > 0 {
		b.matcher = language.NewMatcher(b.Locales)
	}
	subject := b.prefix() + ".>"
	sub, err := b.Conn.QueueSubscribe(subject, b.queue(), func(msg *nats.Msg) {
		b.handle(ctx, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("natsrpc: subscribe to %s: %w", subject, err)
	}
	b.logger().Info("natsrpc subscribed", zap.String("subject", subject), zap.String("queue", b.queue()))
	return sub, nil
}

// Serve answers requests until ctx is done, then drains the subscription.
func (b *Bridge) Serve(ctx context.Context) error {
	sub, err := b.Subscribe(ctx)
	if err != nil {
		return err
	}
	<-ctx.Done()
	if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("natsrpc: drain: %w", err)
	}
	return nil
}

// Route maps a subject under prefix to a verb and path.
func Route(prefix, subject string) (verb, path string, ok bool) {
	rest, found := strings.CutPrefix(subject, prefix+".")
	if !found || rest == "" {
		return "", "", false
	}
	verb, segments, _ := strings.Cut(rest, ".")
	if verb == "" {
		return "", "", false
	}
	return strings.ToUpper(verb), "/" + strings.ReplaceAll(segments, ".", "/"), true
}

// Subject is the inverse of Route.
func Subject(prefix, verb, path string) string {
	subject := prefix + "." + strings.ToUpper(verb)
	if p := strings.Trim(path, "/"); p != "" {
		subject += "." + strings.ReplaceAll(p, "/", ".")
	}
	return subject
}

func (b *Bridge) handle(ctx context.Context, msg *nats.Msg) {
	if msg.Reply == "" {
		return
	}
	start := time.Now()
	reply := nats.NewMsg(msg.Reply)
	status := b.serve(ctx, msg, reply)

	log := b.logger().With(
		zap.String("subject", msg.Subject),
		zap.Int("status", status),
		zap.Int("bytes", len(reply.Data)),
		zap.Duration("duration", time.Since(start)),
		zap.String("request_id", reply.Header.Get(RequestIDHeader)),
	)
	if status >= http.StatusInternalServerError {
		log.Error("natsrpc request")
	} else {
		log.Info("natsrpc request")
	}
	if err := msg.RespondMsg(reply); err != nil {
		b.logger().Warn("natsrpc reply failed", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

// serve fills reply and returns its status.
func (b *Bridge) serve(ctx context.Context, msg *nats.Msg, reply *nats.Msg) int {
	id := msg.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	reply.Header.Set(RequestIDHeader, id)
	ctx = rpc.WithRequestID(ctx, id)

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	verb, path, ok := Route(b.prefix(), msg.Subject)
	if !ok {
		return b.fail(reply, endpoint.Error(http.StatusNotFound, "no operation for subject "+msg.Subject, nil))
	}
	if b.Identify != nil {
		p, found, err := b.Identify(msg.Header)
		if err != nil {
			return b.fail(reply, endpoint.Error(http.StatusUnauthorized, "", err))
		}
		if found {
			ctx = rpc.WithPrincipal(ctx, p)
		}
	}
	if b.matcher != nil {
		_, i := language.MatchStrings(b.matcher, msg.Header.Get("Accept-Language"))
		ctx = rpc.WithLocale(ctx, b.Locales[i])
	}

	args, err := readArgs(msg)
	if err != nil {
		return b.fail(reply, err)
	}
	c, err := b.codecs().Negotiate(msg.Header.Get("Accept"))
	if err != nil {
		return b.fail(reply, endpoint.Error(http.StatusNotAcceptable, "", err))
	}

	res, err := b.Dispatcher.Dispatch(ctx, verb, path, args)
	if err != nil {
		var mna *rpc.MethodNotAllowedError
		if errors.As(err, &mna) {
			reply.Header.Set("Allow", strings.Join(mna.Allowed, ", "))
		}
		return b.fail(reply, rpc.HTTPError(err))
	}
	defer res.Close()

	if res.Void {
		reply.Header.Set(StatusHeader, strconv.Itoa(http.StatusNoContent))
		return http.StatusNoContent
	}
	var buf bytes.Buffer
	if err := c.Encode(&buf, res.Value); err != nil {
		return b.fail(reply, endpoint.Error(http.StatusInternalServerError, "", err))
	}
	reply.Header.Set(StatusHeader, strconv.Itoa(http.StatusOK))
	reply.Header.Set(ContentTypeHeader, c.ContentType())
	reply.Data = buf.Bytes()
	return http.StatusOK
}

func readArgs(msg *nats.Msg) (*rpc.Args, error) {
	args := &rpc.Args{}
	if q := msg.Header.Get(QueryHeader); q != "" {
		vals, err := url.ParseQuery(q)
		if err != nil {
			return nil, endpoint.Error(http.StatusBadRequest, "malformed "+QueryHeader+" header", err)
		}
		args.Query = vals
	}
	data := bytes.TrimSpace(msg.Data)
	if len(data) == 0 {
		return args, nil
	}
	if data[0] != '{' && data[0] != '[' {
		return nil, endpoint.Error(http.StatusBadRequest, "payload must be a JSON object or array", nil)
	}
	body, err := codec.ReadJSON(bytes.NewReader(data))
	if err != nil {
		return nil, endpoint.Error(http.StatusBadRequest, "malformed JSON payload", err)
	}
	args.Body = body
	return args, nil
}

// fail writes the status and client message of err into reply. Messages
// for server errors are replaced by the status text.
func (b *Bridge) fail(reply *nats.Msg, err error) int {
	status, msg := endpoint.StatusOf(err)
	if status >= http.StatusInternalServerError {
		b.logger().Error("natsrpc call failed", zap.Error(err))
		msg = http.StatusText(status)
	}
	reply.Header.Set(StatusHeader, strconv.Itoa(status))
	reply.Header.Set(ErrorHeader, msg)
	return status
}

func (b *Bridge) prefix() string {
	if b.Prefix == "" {
		return DefaultPrefix
	}
	return b.Prefix
}

func (b *Bridge) queue() string {
	if b.Queue == "" {
		return DefaultQueue
	}
	return b.Queue
}

func (b *Bridge) codecs() *codec.Set {
	if b.Codecs == nil {
		return codec.DefaultSet()
	}
	return b.Codecs
}

func (b *Bridge) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}
