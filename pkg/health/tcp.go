package health

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// Greetings sent by servers that talk first
const (
	BannerSMTP = "220"
	BannerSSH  = "SSH-"
)

// TCPChecker dials a delivery endpoint. With a banner set it also reads
// the server's first line, so an SMTP relay that accepts connections but
// never greets is reported down.
type TCPChecker struct {
	address string
	banner  string
	timeout time.Duration
}

// NewTCPChecker creates a connect-only check with a 5s timeout
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{address: address, timeout: 5 * time.Second}
}

// NewSMTPChecker checks a mail relay and expects a 220 greeting
func NewSMTPChecker(address string) *TCPChecker {
	return NewTCPChecker(address).ExpectBanner(BannerSMTP)
}

// ExpectBanner requires the first line sent by the server to start with prefix
func (t *TCPChecker) ExpectBanner(prefix string) *TCPChecker {
	t.banner = prefix
	return t
}

// WithTimeout sets the dial and read timeout
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.timeout = timeout
	return t
}

// Check dials the address and optionally reads the greeting
func (t *TCPChecker) Check(ctx context.Context) Result {
	return timed(func() (bool, string) {
		d := net.Dialer{Timeout: t.timeout}
		conn, err := d.DialContext(ctx, "tcp", t.address)
		if err != nil {
			return false, fmt.Sprintf("dial %s: %v", t.address, err)
		}
		defer conn.Close()

		if t.banner == "" {
			return true, t.address + " reachable"
		}

		_ = conn.SetReadDeadline(time.Now().Add(t.timeout))
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			return false, fmt.Sprintf("no greeting from %s: %v", t.address, err)
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, t.banner) {
			return false, fmt.Sprintf("unexpected greeting from %s: %q", t.address, line)
		}
		return true, fmt.Sprintf("%s reachable, greeted %q", t.address, line)
	})
}

// Type implements Checker
func (t *TCPChecker) Type() CheckType { return CheckTypeTCP }
