package storage

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/RealKorush/bahbah/internal/domain"
)

// JSONRepository stores runs in a newline-delimited JSON file.
type JSONRepository struct {
	path string
}

func NewJSONRepository(path string) *JSONRepository {
	return &JSONRepository{path: path}
}

func (r *JSONRepository) Load() ([]*domain.Run, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, os.ErrNotExist
		}
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	var runs []*domain.Run
	for {
		var run domain.Run
		if err := dec.Decode(&run); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

func (r *JSONRepository) Append(run *domain.Run) error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	if err := enc.Encode(run); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
