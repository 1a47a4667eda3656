package domain

import "context"

// RequestMeta is the provenance the gateway attaches to a request context so
// audit events can be correlated back to it. The actor id is never carried
// here; it is passed explicitly into every engine operation.
type RequestMeta struct {
	RequestID  string
	SourceAddr string
	UserAgent  string
}

type requestMetaContextKey struct{}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaContextKey{}, meta)
}

func RequestMetaFromContext(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaContextKey{}).(RequestMeta)
	return meta, ok
}
