package ports

import "github.com/RealKorush/bahbah/internal/domain"

// RunStorage describes persistence operations required by services dealing with runs.
type RunStorage interface {
	Load() error
	CreateRun(records []domain.Record) (*domain.Run, error)
	GetRuns(ids []int) ([]*domain.Run, error)
}
