// Package collector reassembles records that finish in arbitrary order back
// into input order.
package collector

import (
	"errors"
	"fmt"

	"github.com/RealKorush/bahbah/internal/domain"
)

var (
	ErrOutOfRange = errors.New("record index out of range")
	ErrDuplicate  = errors.New("duplicate record index")
	ErrMissing    = errors.New("missing records")
)

// Entry is a record tagged with the position of its link in the input.
type Entry struct {
	Index  int
	Record domain.Record
}

// Collector is not safe for concurrent use; feed it from a single goroutine,
// typically through Drain.
type Collector struct {
	records []domain.Record
	seen    []bool
	count   int
}

func New(n int) *Collector {
	return &Collector{
		records: make([]domain.Record, n),
		seen:    make([]bool, n),
	}
}

func (c *Collector) Add(e Entry) error {
	if e.Index < 0 || e.Index >= len(c.records) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, e.Index)
	}
	if c.seen[e.Index] {
		return fmt.Errorf("%w: %d", ErrDuplicate, e.Index)
	}
	c.records[e.Index] = e.Record
	c.seen[e.Index] = true
	c.count++
	return nil
}

// Drain adds entries from in until it is closed. The first error is returned
// after in is drained so senders never block.
func (c *Collector) Drain(in <-chan Entry) error {
	var firstErr error
	for e := range in {
		if err := c.Add(e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Collector) Len() int { return c.count }

// Records returns all records in input order.
func (c *Collector) Records() ([]domain.Record, error) {
	if c.count != len(c.records) {
		return nil, fmt.Errorf("%w: have %d of %d", ErrMissing, c.count, len(c.records))
	}
	return c.records, nil
}
