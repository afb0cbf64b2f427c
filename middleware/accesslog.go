package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mnehpets/httprpc/endpoint"
	"github.com/mnehpets/httprpc/rpc"
)

// AccessLog logs one line per request once the response is written: method,
// path, status, bytes, duration, request id and user. Place it after
// RequestIDProcessor and PrincipalProcessor to pick up their values.
type AccessLog struct {
	Logger *zap.Logger
}

func (a *AccessLog) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	if a.Logger == nil {
		return next(w, r)
	}
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w}
	err := next(sw, r)

	status := sw.status
	if err != nil && status == 0 {
		status, _ = endpoint.StatusOf(err)
	}
	if status == 0 {
		status = http.StatusOK
	}

	level := zapcore.InfoLevel
	if status >= http.StatusInternalServerError {
		level = zapcore.ErrorLevel
	}
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Int64("bytes", sw.bytes),
		zap.Duration("duration", time.Since(start)),
	}
	if id := rpc.RequestID(r.Context()); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if user := rpc.UserName(r.Context()); user != "" {
		fields = append(fields, zap.String("user", user))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	a.Logger.Log(level, "request", fields...)
	return err
}

// statusWriter records the status and body size written downstream.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusWriter) WriteHeader(status int) {
	if s.status == 0 {
		s.status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

func (s *statusWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		if s.status == 0 {
			s.status = http.StatusOK
		}
		f.Flush()
	}
}

func (s *statusWriter) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

var _ endpoint.Processor = (*AccessLog)(nil)
