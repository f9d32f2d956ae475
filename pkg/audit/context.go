package audit

import "context"

type ctxKey int

const (
	actorKey ctxKey = iota
	clientKey
)

// ClientInfo is the request metadata stored with an event
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// WithActor attaches the acting user to ctx
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// ActorFrom returns the actor of ctx, nil for system actions
func ActorFrom(ctx context.Context) *string {
	if id, ok := ctx.Value(actorKey).(string); ok && id != "" {
		return &id
	}
	return nil
}

func actorFromContext(ctx context.Context) (*string, error) {
	return ActorFrom(ctx), nil
}

// WithClientInfo attaches client metadata to ctx
func WithClientInfo(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey, ClientInfo{IPAddress: ip, UserAgent: userAgent})
}

// ClientInfoFrom returns the client metadata of ctx
func ClientInfoFrom(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientKey).(ClientInfo)
	return info
}
