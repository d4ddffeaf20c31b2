package intake

import "context"

// Origin describes where an inbound turn came from. Channel adapters attach it
// to the context so completion observers can build operator notifications.
type Origin struct {
	Source          string
	DisplayName     string
	ExternalItemRef string
}

type originKey struct{}

func WithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, originKey{}, o)
}

func OriginFrom(ctx context.Context) (Origin, bool) {
	o, ok := ctx.Value(originKey{}).(Origin)
	return o, ok
}
