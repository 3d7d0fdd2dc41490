package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/RealKorush/bahbah/internal/domain"
	"github.com/RealKorush/bahbah/internal/ports"
)

// ErrRunNotPersisted is returned when a run could not be stored after all retries.
var ErrRunNotPersisted = errors.New("run not persisted")

const resultRetryAttempts = 3

var sleep = time.Sleep

// SaveRun stores records as a new run, retrying with linear backoff of
// PersistBackoff per attempt.
func (s *Service) SaveRun(store ports.RunStorage, records []domain.Record) (*domain.Run, error) {
	var lastErr error
	for attempt := 1; attempt <= resultRetryAttempts; attempt++ {
		run, err := store.CreateRun(records)
		if err == nil {
			return run, nil
		}
		lastErr = err
		s.logger.Warn("persist run failed", "attempt", attempt, "error", err)
		if attempt < resultRetryAttempts {
			sleep(time.Duration(attempt) * s.persistBackoff)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrRunNotPersisted, lastErr)
}
