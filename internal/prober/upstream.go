package prober

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"golang.org/x/net/proxy"

	"github.com/RealKorush/bahbah/internal/ports"
)

// NewDialer returns a direct dialer when via is empty, or a dialer that
// tunnels every connect through the upstream proxy at via
// (socks5://[user:pass@]host:port).
func NewDialer(via string) (ports.Dialer, error) {
	if via == "" {
		return &net.Dialer{}, nil
	}

	u, err := url.Parse(via)
	if err != nil {
		return nil, fmt.Errorf("parse upstream proxy: %w", err)
	}
	switch u.Scheme {
	case "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("unsupported upstream proxy scheme %q", u.Scheme)
	}

	d, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("build upstream dialer: %w", err)
	}
	if cd, ok := d.(proxy.ContextDialer); ok {
		return contextDialer{cd}, nil
	}
	return legacyDialer{d}, nil
}

type contextDialer struct {
	d proxy.ContextDialer
}

func (c contextDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return c.d.DialContext(ctx, network, address)
}

// legacyDialer runs a blocking Dial in a goroutine so the caller's deadline
// still applies. A connection that arrives after cancellation is closed.
type legacyDialer struct {
	d proxy.Dialer
}

func (l legacyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.d.Dial(network, address)
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
