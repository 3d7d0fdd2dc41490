package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RealKorush/bahbah/internal/domain"
)

func sampleRecords() []domain.Record {
	t := domain.ConnectTarget{Host: "example.com", Port: 443}
	return []domain.Record{
		domain.AliveRecord("vless://uuid@example.com:443?encryption=none", t, 41),
		domain.DeadRecord("trojan://pw@example.com:443", t),
		domain.InvalidRecord("not-a-uri"),
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleRecords()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back csv: %v", err)
	}
	want := [][]string{
		{"link", "host", "port", "status", "latency_ms"},
		{"vless://uuid@example.com:443?encryption=none", "example.com", "443", "alive", "41.0"},
		{"trojan://pw@example.com:443", "example.com", "443", "dead", ""},
		{"not-a-uri", "", "", "invalid", ""},
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i := range want {
		if strings.Join(rows[i], "|") != strings.Join(want[i], "|") {
			t.Fatalf("row %d = %q, want %q", i, rows[i], want[i])
		}
	}
}

func TestWriteCSV_QuotesCommas(t *testing.T) {
	var buf bytes.Buffer
	recs := []domain.Record{domain.InvalidRecord(`weird,"link"`)}
	if err := WriteCSV(&buf, recs); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if !strings.Contains(buf.String(), `"weird,""link"""`) {
		t.Fatalf("link not quoted: %q", buf.String())
	}
}

func TestFormatLatency(t *testing.T) {
	v := 0.04
	if got := FormatLatency(&v); got != "0.0" {
		t.Fatalf("FormatLatency(0.04) = %q", got)
	}
	if got := FormatLatency(nil); got != "" {
		t.Fatalf("FormatLatency(nil) = %q", got)
	}
}

func TestBuildRunsReport(t *testing.T) {
	runs := []*domain.Run{
		{ID: 1, CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Records: sampleRecords()},
		{ID: 2, Records: []domain.Record{domain.InvalidRecord(strings.Repeat("x", 200))}},
	}
	data, err := BuildRunsReport(runs)
	if err != nil {
		t.Fatalf("BuildRunsReport: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output is not a pdf")
	}
}

func TestFormatFor(t *testing.T) {
	tests := map[string]Format{
		"results.csv": FormatCSV,
		"results.PDF": FormatPDF,
		"out":         FormatCSV,
	}
	for path, want := range tests {
		if got := FormatFor(path); got != want {
			t.Fatalf("FormatFor(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestCreate_CommitReplacesDestination(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.csv")
	if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Abort()
	if err := Write(f, FormatCSV, &domain.Run{Records: sampleRecords()}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if data, _ := os.ReadFile(path); string(data) != "old\n" {
		t.Fatalf("destination changed before commit: %q", data)
	}
	if err := f.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasPrefix(string(data), "link,host,port,status,latency_ms\n") {
		t.Fatalf("unexpected report: %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the report in %s, got %d entries", dir, len(entries))
	}
}

func TestCreate_AbortKeepsPreviousReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.csv")
	if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.WriteString("partial"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	f.Abort()
	if err := f.Commit(); err != nil {
		t.Fatalf("Commit after Abort: %v", err)
	}

	if data, _ := os.ReadFile(path); string(data) != "old\n" {
		t.Fatalf("previous report changed: %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temporary file left behind: %d entries", len(entries))
	}
}

func TestCreate_MissingDirectory(t *testing.T) {
	if _, err := Create(filepath.Join(t.TempDir(), "no", "such", "r.csv")); err == nil {
		t.Fatalf("expected error")
	}
}
