package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/RealKorush/bahbah/internal/domain"
	"github.com/RealKorush/bahbah/internal/ports"
	"github.com/RealKorush/bahbah/internal/report"
	"github.com/RealKorush/bahbah/internal/service"
)

type contextKey struct{ name string }

// RunIDContextKey carries the id of the run created by a request, for access logs.
var RunIDContextKey = &contextKey{name: "run_id"}

const reportGenerationTimeout = 30 * time.Second

type LinksRequest struct {
	Links []string `json:"links"`
}

type LinksResponse struct {
	RunID     int             `json:"run_id"`
	Records   []domain.Record `json:"records"`
	Summary   domain.Summary  `json:"summary"`
	Persisted bool            `json:"persisted"`
}

type ReportRequest struct {
	Runs []int `json:"runs"`
}

type Handler struct {
	svc      *service.Service
	store    ports.RunStorage
	maxLinks int
}

func NewHandler(svc *service.Service, store ports.RunStorage, maxLinks int) *Handler {
	if maxLinks <= 0 {
		maxLinks = 5000
	}
	return &Handler{svc: svc, store: store, maxLinks: maxLinks}
}

func (h *Handler) Links(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req LinksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if len(req.Links) == 0 || len(req.Links) > h.maxLinks {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	records, err := h.svc.Run(r.Context(), req.Links, nil)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	resp := LinksResponse{Records: records, Summary: domain.Summarize(records)}
	status := http.StatusOK
	run, err := h.svc.SaveRun(h.store, records)
	switch {
	case err == nil:
		resp.RunID = run.ID
		resp.Persisted = true
		*r = *r.WithContext(context.WithValue(r.Context(), RunIDContextKey, run.ID))
	case errors.Is(err, service.ErrRunNotPersisted):
		status = http.StatusAccepted
	default:
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Report renders stored runs as a PDF, or as CSV with ?format=csv.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if len(req.Runs) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	for _, id := range req.Runs {
		if id <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), reportGenerationTimeout)
	defer cancel()

	runs, err := h.store.GetRuns(req.Runs)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if len(runs) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if r.URL.Query().Get("format") == string(report.FormatCSV) {
		var records []domain.Record
		for _, run := range runs {
			records = append(records, run.Records...)
		}
		var buf bytes.Buffer
		if err := report.WriteCSV(&buf, records); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=report.csv")
		_, _ = w.Write(buf.Bytes())
		return
	}

	data, err := buildPDF(ctx, runs)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			http.Error(w, "report generation timeout", http.StatusGatewayTimeout)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=report.pdf")
	_, _ = w.Write(data)
}

func buildPDF(ctx context.Context, runs []*domain.Run) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := report.BuildRunsReport(runs)
		ch <- result{data, err}
	}()

	select {
	case res := <-ch:
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
