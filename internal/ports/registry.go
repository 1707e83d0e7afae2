// Package ports inspects local TCP listen sockets and resolves which process
// owns a bound port. Ownership lookups are advisory: every enumeration or
// permission failure degrades to "unknown owner" rather than an error, and an
// unknown owner never matches an expected process name, so callers fall back
// to launching fresh on a different port instead of risking a collision.
package ports

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	gopsnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// Owner identifies the operating-system process bound to a port.
type Owner struct {
	PID  int32
	Name string
}

// Registry reports whether local TCP ports are bound and, when possible, by
// which process.
type Registry interface {
	// IsBound reports whether anything is listening on the port.
	IsBound(ctx context.Context, port int) bool

	// OwnerOf resolves the process identity listening on the port. The
	// second return value is false when nothing is listening or when the
	// owner could not be determined.
	OwnerOf(ctx context.Context, port int) (Owner, bool)
}

// MatchesOwner reports whether the owner's process name is in names,
// compared case-insensitively. Process-name matching is deliberately loose;
// it distinguishes "our own previously-started instance" from "an unrelated
// process grabbed this port", nothing more.
func MatchesOwner(owner Owner, names []string) bool {
	for _, name := range names {
		if strings.EqualFold(owner.Name, name) {
			return true
		}
	}
	return false
}

// SystemRegistry is the production Registry backed by the OS socket tables
// via gopsutil, with a plain TCP dial as fallback when enumeration fails.
type SystemRegistry struct {
	// DialTimeout bounds the fallback connect check. Zero means 250ms.
	DialTimeout time.Duration
}

// NewSystemRegistry returns a Registry backed by the local OS.
func NewSystemRegistry() *SystemRegistry {
	return &SystemRegistry{}
}

func (r *SystemRegistry) dialTimeout() time.Duration {
	if r.DialTimeout > 0 {
		return r.DialTimeout
	}
	return 250 * time.Millisecond
}

// IsBound reports whether anything is listening on the port. When the socket
// table cannot be read (permissions, platform quirks) a connect attempt
// against loopback decides.
func (r *SystemRegistry) IsBound(ctx context.Context, port int) bool {
	conns, err := gopsnet.ConnectionsWithContext(ctx, "tcp")
	if err == nil {
		for _, conn := range conns {
			if conn.Status == "LISTEN" && int(conn.Laddr.Port) == port {
				return true
			}
		}
		return false
	}

	dialer := &net.Dialer{Timeout: r.dialTimeout()}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// OwnerOf resolves the listening process on the port. Lookup failures return
// (Owner{}, false): unknown, treated conservatively by callers.
func (r *SystemRegistry) OwnerOf(ctx context.Context, port int) (Owner, bool) {
	conns, err := gopsnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return Owner{}, false
	}

	for _, conn := range conns {
		if conn.Status != "LISTEN" || int(conn.Laddr.Port) != port {
			continue
		}
		if conn.Pid <= 0 {
			// Socket visible but owner not attributable (common without
			// elevated privileges).
			return Owner{}, false
		}
		proc, err := process.NewProcessWithContext(ctx, conn.Pid)
		if err != nil {
			return Owner{}, false
		}
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			return Owner{}, false
		}
		return Owner{PID: conn.Pid, Name: name}, true
	}

	return Owner{}, false
}
