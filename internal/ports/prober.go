package ports

import (
	"context"
	"net"

	"github.com/RealKorush/bahbah/internal/domain"
)

// Prober checks reachability of a single connect target.
type Prober interface {
	Probe(ctx context.Context, target domain.ConnectTarget) domain.Outcome
}

// Dialer abstracts net.Dialer and upstream proxy dialers used by probers.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}
