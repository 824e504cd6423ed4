// Package auth carries request identity. There is no policy here: the engine
// treats identity as opaque context that transports inject and mutators read.
package auth

import "context"

type ctxKey struct{}

// Caller is the identity attached to a request. Anonymous callers carry an
// empty Subject.
type Caller struct {
	Subject string
	Claims  map[string]any
}

// Anonymous reports whether no identity was presented.
func (c Caller) Anonymous() bool { return c.Subject == "" }

// WithCaller attaches c to ctx. This is the injection point for transports
// and tests alike.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// CallerFrom returns the attached identity, or the anonymous caller.
func CallerFrom(ctx context.Context) Caller {
	if c, ok := ctx.Value(ctxKey{}).(Caller); ok {
		return c
	}
	return Caller{}
}
