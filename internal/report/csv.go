// Package report renders result records as CSV or PDF.
package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/RealKorush/bahbah/internal/domain"
)

var csvHeader = []string{"link", "host", "port", "status", "latency_ms"}

// WriteCSV writes the header and one row per record. Fields that do not apply
// to a record's status are left empty.
func WriteCSV(w io.Writer, records []domain.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range records {
		if err := cw.Write(Row(rec)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func Row(rec domain.Record) []string {
	row := []string{rec.Link, "", "", string(rec.Status), ""}
	if rec.Status != domain.StatusInvalid {
		row[1] = rec.Host
		row[2] = strconv.Itoa(rec.Port)
	}
	row[4] = FormatLatency(rec.LatencyMS)
	return row
}

// FormatLatency renders milliseconds with one decimal, or "" when absent.
func FormatLatency(ms *float64) string {
	if ms == nil {
		return ""
	}
	return strconv.FormatFloat(*ms, 'f', 1, 64)
}
