package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/RealKorush/bahbah/internal/domain"
)

type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// FormatFor picks the report format from the output file extension.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return FormatPDF
	}
	return FormatCSV
}

// File is a report being written to a temporary sibling of its final path.
// The destination is only replaced by Commit, so a failed run leaves any
// previous report untouched.
type File struct {
	*os.File
	path string
	done bool
}

// Create opens a temporary file next to path. It fails early when the
// destination directory is not writable.
func Create(path string) (*File, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create report %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("create report %s: %w", path, err)
	}
	return &File{File: tmp, path: path}, nil
}

// Commit closes the temporary file and moves it over the destination.
func (f *File) Commit() error {
	if f.done {
		return nil
	}
	f.done = true
	if err := f.File.Close(); err != nil {
		os.Remove(f.File.Name())
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(f.File.Name(), f.path); err != nil {
		os.Remove(f.File.Name())
		return fmt.Errorf("rename report %s: %w", f.path, err)
	}
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit.
func (f *File) Abort() {
	if f.done {
		return
	}
	f.done = true
	f.File.Close()
	os.Remove(f.File.Name())
}

// Write renders records to w in the given format.
func Write(w io.Writer, format Format, run *domain.Run) error {
	if format == FormatPDF {
		data, err := BuildRunsReport([]*domain.Run{run})
		if err != nil {
			return fmt.Errorf("build pdf: %w", err)
		}
		_, err = w.Write(data)
		return err
	}
	return WriteCSV(w, run.Records)
}
