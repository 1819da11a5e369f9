package logger

import "context"

type scopeKey struct{}

// scope is what a request or connection carries for its log lines.
// It is copied on every With call, so values stored in a parent context
// never change under a child.
type scope struct {
	log          Logger
	requestID    string
	connectionID string
}

func scopeFrom(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func withScope(ctx context.Context, edit func(*scope)) context.Context {
	s := scopeFrom(ctx)
	edit(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithLogger stores l in ctx.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return withScope(ctx, func(s *scope) { s.log = l })
}

// FromContext returns the logger stored in ctx, or Default.
func FromContext(ctx context.Context) Logger {
	if l := scopeFrom(ctx).log; l != nil {
		return l
	}
	return Default()
}

// WithRequestID tags ctx with the HTTP request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withScope(ctx, func(s *scope) { s.requestID = id })
}

// RequestIDFromContext returns the request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	return scopeFrom(ctx).requestID
}

// WithConnectionID tags ctx with a gateway connection ID.
func WithConnectionID(ctx context.Context, id string) context.Context {
	return withScope(ctx, func(s *scope) { s.connectionID = id })
}

// ConnectionIDFromContext returns the connection ID, or "".
func ConnectionIDFromContext(ctx context.Context) string {
	return scopeFrom(ctx).connectionID
}

// L returns the context's logger with request_id and connection_id
// attached when present.
func L(ctx context.Context) Logger {
	s := scopeFrom(ctx)
	l := s.log
	if l == nil {
		l = Default()
	}

	var attrs []any
	if s.requestID != "" {
		attrs = append(attrs, "request_id", s.requestID)
	}
	if s.connectionID != "" {
		attrs = append(attrs, "connection_id", s.connectionID)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}
