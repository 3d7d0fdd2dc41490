// Package prober measures TCP connect latency to proxy endpoints.
package prober

import (
	"context"
	"math"
	"net"
	"time"

	"github.com/RealKorush/bahbah/internal/domain"
	"github.com/RealKorush/bahbah/internal/ports"
)

const DefaultTimeout = 3 * time.Second

// TCP opens a plain TCP connection and closes it right away. No bytes are
// exchanged with the target.
type TCP struct {
	dialer  ports.Dialer
	timeout time.Duration
}

func NewTCP(dialer ports.Dialer, timeout time.Duration) *TCP {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TCP{dialer: dialer, timeout: timeout}
}

// Probe reports the connect latency or OutcomeUnreachable. DNS errors,
// refusals and timeouts are not told apart.
func (p *TCP) Probe(ctx context.Context, target domain.ConnectTarget) domain.Outcome {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", target.Address())
	elapsed := time.Since(start)
	if conn != nil {
		_ = conn.Close()
	}
	if err != nil || conn == nil {
		return domain.Unreachable()
	}
	if ctx.Err() != nil {
		// some dialers ignore the context; treat a late connect as a timeout
		return domain.Unreachable()
	}
	return domain.Latency(roundMS(elapsed))
}

// roundMS converts d to milliseconds rounded to one decimal place.
func roundMS(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*10) / 10
}
