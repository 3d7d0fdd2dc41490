package domain

import (
	"net"
	"strconv"
	"time"
)

type Status string

const (
	StatusInvalid Status = "invalid"
	StatusAlive   Status = "alive"
	StatusDead    Status = "dead"
)

// ConnectTarget is the host/port pair a probe dials.
type ConnectTarget struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Address returns host:port, re-bracketing IPv6 literals.
func (t ConnectTarget) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

type OutcomeKind int

const (
	OutcomeUnreachable OutcomeKind = iota
	OutcomeLatency
)

// Outcome is the result of one probe. LatencyMS is only meaningful for OutcomeLatency.
type Outcome struct {
	Kind      OutcomeKind
	LatencyMS float64
}

func Latency(ms float64) Outcome { return Outcome{Kind: OutcomeLatency, LatencyMS: ms} }

func Unreachable() Outcome { return Outcome{Kind: OutcomeUnreachable} }

// Record is the report row for one input link.
//
// invalid: Host, Port and LatencyMS are empty.
// alive:   Host, Port and LatencyMS are set.
// dead:    Host and Port are set, LatencyMS is nil.
type Record struct {
	Link      string   `json:"link"`
	Host      string   `json:"host,omitempty"`
	Port      int      `json:"port,omitempty"`
	Status    Status   `json:"status"`
	LatencyMS *float64 `json:"latency_ms,omitempty"`
}

func InvalidRecord(link string) Record {
	return Record{Link: link, Status: StatusInvalid}
}

func AliveRecord(link string, t ConnectTarget, latencyMS float64) Record {
	if latencyMS < 0 {
		latencyMS = 0
	}
	return Record{Link: link, Host: t.Host, Port: t.Port, Status: StatusAlive, LatencyMS: &latencyMS}
}

func DeadRecord(link string, t ConnectTarget) Record {
	return Record{Link: link, Host: t.Host, Port: t.Port, Status: StatusDead}
}

// RecordFor maps a probe outcome onto a record for target.
func RecordFor(link string, t ConnectTarget, o Outcome) Record {
	if o.Kind == OutcomeLatency {
		return AliveRecord(link, t, o.LatencyMS)
	}
	return DeadRecord(link, t)
}

// Run is one persisted batch of records.
type Run struct {
	ID        int       `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Records   []Record  `json:"records"`
}

type Summary struct {
	Total   int `json:"total"`
	Alive   int `json:"alive"`
	Dead    int `json:"dead"`
	Invalid int `json:"invalid"`
}

func Summarize(records []Record) Summary {
	s := Summary{Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case StatusAlive:
			s.Alive++
		case StatusDead:
			s.Dead++
		case StatusInvalid:
			s.Invalid++
		}
	}
	return s
}

func (r *Run) Summary() Summary { return Summarize(r.Records) }

// CopyRecords returns a deep copy so callers can't mutate stored latency values.
func CopyRecords(in []Record) []Record {
	if in == nil {
		return nil
	}
	out := make([]Record, len(in))
	for i, r := range in {
		if r.LatencyMS != nil {
			v := *r.LatencyMS
			r.LatencyMS = &v
		}
		out[i] = r
	}
	return out
}
