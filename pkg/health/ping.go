package health

import "context"

// PingFunc checks a client that has its own ping, such as the store or
// the Redis lock
type PingFunc func(ctx context.Context) error

// PingChecker adapts a PingFunc to Checker
type PingChecker struct {
	Ping PingFunc
}

// NewPingChecker wraps ping
func NewPingChecker(ping PingFunc) *PingChecker {
	return &PingChecker{Ping: ping}
}

// Check calls the ping function
func (p *PingChecker) Check(ctx context.Context) Result {
	return timed(func() (bool, string) {
		if err := p.Ping(ctx); err != nil {
			return false, err.Error()
		}
		return true, "ok"
	})
}

// Type implements Checker
func (p *PingChecker) Type() CheckType {
	return CheckTypePing
}
