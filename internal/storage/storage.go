package storage

import (
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/RealKorush/bahbah/internal/domain"
)

// RunRepository is the durable backend behind FileStorage. Append may
// replace run.ID with an id the backend assigned itself.
type RunRepository interface {
	Load() ([]*domain.Run, error)
	Append(run *domain.Run) error
}

// FileStorage keeps runs in memory and appends each new run to its repository.
type FileStorage struct {
	mu     sync.RWMutex
	repo   RunRepository
	nextID int
	runs   map[int]*domain.Run
	now    func() time.Time
}

func NewFileStorage(repo RunRepository) *FileStorage {
	return &FileStorage{
		repo:   repo,
		nextID: 1,
		runs:   make(map[int]*domain.Run),
		now:    time.Now,
	}
}

func (s *FileStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.repo.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	maxID := 0
	for _, r := range list {
		if r.ID > maxID {
			maxID = r.ID
		}
		s.runs[r.ID] = r
	}
	s.nextID = maxID + 1
	return nil
}

func (s *FileStorage) CreateRun(records []domain.Record) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &domain.Run{
		ID:        s.nextID,
		CreatedAt: s.now().UTC(),
		Records:   domain.CopyRecords(records),
	}
	if err := s.repo.Append(r); err != nil {
		return nil, err
	}
	s.nextID = max(s.nextID, r.ID) + 1
	s.runs[r.ID] = r
	return r, nil
}

// GetRuns returns the known runs among ids, in the order requested.
func (s *FileStorage) GetRuns(ids []int) ([]*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*domain.Run, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.runs[id]; ok {
			res = append(res, r)
		}
	}
	return res, nil
}

// IDs returns all run IDs in ascending order.
func (s *FileStorage) IDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Stats returns the number of runs and the number of records across them.
func (s *FileStorage) Stats() (runs int, records int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.runs {
		runs++
		records += len(r.Records)
	}
	return runs, records
}
