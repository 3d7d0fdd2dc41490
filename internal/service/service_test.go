package service

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/RealKorush/bahbah/internal/domain"
	"github.com/RealKorush/bahbah/internal/prober"
)

const basePort = 1000

// fakeProber encodes the link index in the target port (basePort + index).
type fakeProber struct {
	mu          sync.Mutex
	calls       map[string]int
	inFlight    int32
	maxInFlight int32
	finished    int32
	delay       func(idx int) time.Duration
	alive       func(idx int) bool
	onStart     func(idx int, finished int32)
}

func (f *fakeProber) Probe(ctx context.Context, target domain.ConnectTarget) domain.Outcome {
	idx := target.Port - basePort
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[target.Address()]++
	f.mu.Unlock()

	if f.onStart != nil {
		f.onStart(idx, atomic.LoadInt32(&f.finished))
	}
	cur := atomic.AddInt32(&f.inFlight, 1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, cur) {
			break
		}
	}
	defer func() {
		atomic.AddInt32(&f.inFlight, -1)
		atomic.AddInt32(&f.finished, 1)
	}()

	if f.delay != nil {
		select {
		case <-time.After(f.delay(idx)):
		case <-ctx.Done():
			return domain.Unreachable()
		}
	}
	if f.alive != nil && !f.alive(idx) {
		return domain.Unreachable()
	}
	return domain.Latency(float64(idx))
}

func (f *fakeProber) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func indexedLinks(n int) []string {
	links := make([]string, n)
	for i := range links {
		links[i] = fmt.Sprintf("vless://uuid@host.test:%d?security=tls", basePort+i)
	}
	return links
}

var policies = []Policy{PolicyChunk, PolicyWindow}

func TestService_Run_PreservesInputOrder(t *testing.T) {
	for _, policy := range policies {
		t.Run(string(policy), func(t *testing.T) {
			links := indexedLinks(6)
			links[2] = "not-a-uri"
			fp := &fakeProber{
				// later links finish first
				delay: func(idx int) time.Duration { return time.Duration(6-idx) * 5 * time.Millisecond },
				alive: func(idx int) bool { return idx%2 == 0 },
			}
			svc := New(fp, Options{Concurrency: 3, Policy: policy})

			records, err := svc.Run(context.Background(), links, nil)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(records) != len(links) {
				t.Fatalf("expected %d records, got %d", len(links), len(records))
			}

			want := []domain.Status{
				domain.StatusAlive, domain.StatusDead, domain.StatusInvalid,
				domain.StatusDead, domain.StatusAlive, domain.StatusDead,
			}
			for i, rec := range records {
				if rec.Link != links[i] {
					t.Fatalf("record %d link = %q, want %q", i, rec.Link, links[i])
				}
				if rec.Status != want[i] {
					t.Fatalf("record %d status = %s, want %s", i, rec.Status, want[i])
				}
			}

			inv := records[2]
			if inv.Host != "" || inv.Port != 0 || inv.LatencyMS != nil {
				t.Fatalf("invalid record carries target data: %+v", inv)
			}
			dead := records[1]
			if dead.Host != "host.test" || dead.Port != basePort+1 || dead.LatencyMS != nil {
				t.Fatalf("unexpected dead record: %+v", dead)
			}
			alive := records[4]
			if alive.LatencyMS == nil || *alive.LatencyMS != 4 {
				t.Fatalf("unexpected alive record: %+v", alive)
			}
		})
	}
}

func TestService_Run_ConcurrencyBound(t *testing.T) {
	for _, policy := range policies {
		t.Run(string(policy), func(t *testing.T) {
			const c = 7
			fp := &fakeProber{delay: func(int) time.Duration { return 2 * time.Millisecond }}
			svc := New(fp, Options{Concurrency: c, Policy: policy})

			records, err := svc.Run(context.Background(), indexedLinks(200), nil)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(records) != 200 {
				t.Fatalf("expected 200 records, got %d", len(records))
			}
			if max := atomic.LoadInt32(&fp.maxInFlight); max > c {
				t.Fatalf("max in flight %d exceeds concurrency %d", max, c)
			}
			if fp.totalCalls() != 200 {
				t.Fatalf("expected 200 probes, got %d", fp.totalCalls())
			}
		})
	}
}

func TestService_Run_ChunksSettleBeforeNext(t *testing.T) {
	const c = 4
	var violations int32
	fp := &fakeProber{
		delay: func(idx int) time.Duration { return time.Duration(idx%c+1) * time.Millisecond },
		onStart: func(idx int, finished int32) {
			if finished < int32(idx/c*c) {
				atomic.AddInt32(&violations, 1)
			}
		},
	}
	svc := New(fp, Options{Concurrency: c, Policy: PolicyChunk})

	if _, err := svc.Run(context.Background(), indexedLinks(21), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v := atomic.LoadInt32(&violations); v != 0 {
		t.Fatalf("%d probes started before the previous chunk settled", v)
	}
}

func TestService_Run_InvalidNeverProbed(t *testing.T) {
	fp := &fakeProber{}
	svc := New(fp, Options{Concurrency: 2})

	links := []string{"not-a-uri", "trojan://pw@host.test", "", "ss://!!!"}
	records, err := svc.Run(context.Background(), links, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, rec := range records {
		if rec.Status != domain.StatusInvalid {
			t.Fatalf("record %d status = %s, want invalid", i, rec.Status)
		}
	}
	if fp.totalCalls() != 0 {
		t.Fatalf("expected no probes, got %d", fp.totalCalls())
	}
}

func TestService_Run_Idempotent(t *testing.T) {
	links := append(indexedLinks(10), "not-a-uri", "vless://x@:1")
	fp := &fakeProber{alive: func(idx int) bool { return idx < 5 }}
	svc := New(fp, Options{Concurrency: 3, Policy: PolicyWindow})

	first, err := svc.Run(context.Background(), links, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := svc.Run(context.Background(), links, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := range first {
		if first[i].Status != second[i].Status {
			t.Fatalf("record %d status changed between runs: %s vs %s", i, first[i].Status, second[i].Status)
		}
	}
}

func TestService_Run_OnRecordCalledOncePerLink(t *testing.T) {
	fp := &fakeProber{}
	svc := New(fp, Options{Concurrency: 5})

	var n int32
	links := append(indexedLinks(12), "bad")
	if _, err := svc.Run(context.Background(), links, func(domain.Record) { atomic.AddInt32(&n, 1) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if int(n) != len(links) {
		t.Fatalf("onRecord called %d times, want %d", n, len(links))
	}
}

func TestService_Run_EmptyInput(t *testing.T) {
	svc := New(&fakeProber{}, Options{})
	records, err := svc.Run(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestService_Run_BreakerSkipsRepeatedDeadAddress(t *testing.T) {
	fp := &fakeProber{alive: func(int) bool { return false }}
	svc := New(fp, Options{Concurrency: 1, BreakerThreshold: 1, BreakerCooldown: time.Minute})

	links := []string{
		"trojan://a@host.test:1000",
		"vless://b@host.test:1000",
		"ss://aes-128-gcm:c@host.test:1000",
	}
	records, err := svc.Run(context.Background(), links, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, rec := range records {
		if rec.Status != domain.StatusDead {
			t.Fatalf("record %d status = %s, want dead", i, rec.Status)
		}
	}
	if fp.totalCalls() != 1 {
		t.Fatalf("expected 1 probe, got %d", fp.totalCalls())
	}
}

func TestService_Run_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	fp := &fakeProber{alive: func(idx int) bool { return idx == 0 }}
	svc := New(fp, Options{Concurrency: 2, Metrics: m})

	links := append(indexedLinks(3), "not-a-uri")
	if _, err := svc.Run(context.Background(), links, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := testutil.ToFloat64(m.links); got != 4 {
		t.Fatalf("links_total = %v, want 4", got)
	}
	checks := map[domain.Status]float64{
		domain.StatusAlive:   1,
		domain.StatusDead:    2,
		domain.StatusInvalid: 1,
	}
	for status, want := range checks {
		if got := testutil.ToFloat64(m.records.WithLabelValues(string(status))); got != want {
			t.Fatalf("records_total{status=%q} = %v, want %v", status, got, want)
		}
	}
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("probes_in_flight = %v after run, want 0", got)
	}
}

func TestService_Run_RateLimited(t *testing.T) {
	fp := &fakeProber{}
	svc := New(fp, Options{Concurrency: 10, RateLimit: 50, RateBurst: 1})

	start := time.Now()
	if _, err := svc.Run(context.Background(), indexedLinks(6), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 1 burst token, then 5 more at 50/s
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("expected paced probes, run took only %v", elapsed)
	}
}

func TestService_Run_TCPProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	openPort := ln.Addr().(*net.TCPAddr).Port

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	closedPort := closed.Addr().(*net.TCPAddr).Port
	closed.Close()

	links := []string{
		fmt.Sprintf("trojan://pw@127.0.0.1:%d", openPort),
		fmt.Sprintf("vless://uuid@127.0.0.1:%d?encryption=none", closedPort),
		"not-a-uri",
	}
	timeout := 500 * time.Millisecond
	svc := New(prober.NewTCP(nil, timeout), Options{Concurrency: 2})

	start := time.Now()
	records, err := svc.Run(context.Background(), links, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > timeout+time.Second {
		t.Fatalf("run took %v with timeout %v", elapsed, timeout)
	}

	want := []domain.Status{domain.StatusAlive, domain.StatusDead, domain.StatusInvalid}
	for i, rec := range records {
		if rec.Status != want[i] {
			t.Fatalf("record %d status = %s, want %s", i, rec.Status, want[i])
		}
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want Policy
		ok   bool
	}{
		{"", PolicyChunk, true},
		{"chunk", PolicyChunk, true},
		{"window", PolicyWindow, true},
		{"sliding", "", false},
	}
	for _, tc := range tests {
		got, err := ParsePolicy(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Fatalf("ParsePolicy(%q) = %q, %v", tc.in, got, err)
		}
	}
}
