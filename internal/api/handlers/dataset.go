package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/gapwatch/internal/checkpoint"
	"github.com/wonny/gapwatch/internal/contracts"
	"github.com/wonny/gapwatch/internal/dataset"
	"github.com/wonny/gapwatch/internal/qualification"
	"github.com/wonny/gapwatch/pkg/logger"
)

// DatasetReader loads a day's table
type DatasetReader interface {
	Load(ctx context.Context, date string) (*dataset.Table, error)
}

// DatasetHandler serves the daily datasets to the dashboard
// ⭐ SSOT: dataset API handlers live in this struct only
type DatasetHandler struct {
	reader DatasetReader
	logger *logger.Logger
}

// NewDatasetHandler creates a new dataset handler
func NewDatasetHandler(reader DatasetReader, log *logger.Logger) *DatasetHandler {
	return &DatasetHandler{
		reader: reader,
		logger: log,
	}
}

// DatasetResponse is the JSON view of a table
type DatasetResponse struct {
	Date      string         `json:"date"`
	Labels    []string       `json:"labels"`
	Full      []string       `json:"full_labels"`
	RowCount  int            `json:"row_count"`
	Rows      []*dataset.Row `json:"rows"`
}

// QualifiedResponse lists the qualified symbols of one checkpoint
type QualifiedResponse struct {
	Date      string                      `json:"date"`
	Label     string                      `json:"label"`
	Count     int                         `json:"count"`
	Qualified []contracts.QualifiedSymbol `json:"qualified"`
}

// GetDataset returns the whole table as JSON
// GET /api/datasets/{date}
func (h *DatasetHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	table, ok := h.load(w, r)
	if !ok {
		return
	}

	var full []string
	for _, l := range table.Labels() {
		if table.IsFull(l) {
			full = append(full, l)
		}
	}

	respondJSON(w, http.StatusOK, DatasetResponse{
		Date:     table.Date,
		Labels:   table.Labels(),
		Full:     full,
		RowCount: table.Len(),
		Rows:     table.Rows(),
	})
}

// GetDatasetCSV returns the table in its persisted CSV form
// GET /api/datasets/{date}/csv
func (h *DatasetHandler) GetDatasetCSV(w http.ResponseWriter, r *http.Request) {
	table, ok := h.load(w, r)
	if !ok {
		return
	}

	data, err := dataset.Encode(table)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode dataset")
		respondError(w, http.StatusInternalServerError, "Failed to encode dataset")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "inline; filename=\"raw_data_"+table.Date+".csv\"")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// GetQualified returns the symbols qualified at a checkpoint, largest
// market cap first. Without ?checkpoint= the latest checkpoint is used.
// GET /api/datasets/{date}/qualified
func (h *DatasetHandler) GetQualified(w http.ResponseWriter, r *http.Request) {
	table, ok := h.load(w, r)
	if !ok {
		return
	}

	label := r.URL.Query().Get("checkpoint")
	if label == "" {
		labels := table.Labels()
		if len(labels) == 0 {
			respondJSON(w, http.StatusOK, QualifiedResponse{Date: table.Date, Qualified: []contracts.QualifiedSymbol{}})
			return
		}
		label = latest(labels)
	}
	if err := dataset.ValidateLabel(label); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !table.HasLabel(label) {
		respondError(w, http.StatusNotFound, "Checkpoint not recorded: "+label)
		return
	}

	qualified := []contracts.QualifiedSymbol{}
	for _, row := range table.Rows() {
		cp := row.Checkpoint(label)
		if cp == nil || cp.Verdict == nil || !cp.Verdict.Qualified {
			continue
		}
		pct, _ := qualification.PctChange(row.Close, cp.CurrentPrice)
		pctF, _ := pct.Float64()
		qualified = append(qualified, contracts.QualifiedSymbol{
			Symbol:            row.Symbol,
			CurrentPrice:      cp.CurrentPrice.Float64,
			PctChange:         pctF,
			Volume:            cp.CurrentVolume.Float64,
			MarketCapMillions: cp.IntradayMarketCapMillions,
		})
	}
	checkpoint.SortByMarketCap(qualified)

	respondJSON(w, http.StatusOK, QualifiedResponse{
		Date:      table.Date,
		Label:     label,
		Count:     len(qualified),
		Qualified: qualified,
	})
}

func (h *DatasetHandler) load(w http.ResponseWriter, r *http.Request) (*dataset.Table, bool) {
	date := mux.Vars(r)["date"]
	if err := dataset.ValidateDate(date); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	table, err := h.reader.Load(r.Context(), date)
	switch {
	case err == nil:
		return table, true
	case errors.Is(err, dataset.ErrNotFound):
		respondError(w, http.StatusNotFound, "No dataset for "+date)
	case errors.Is(err, dataset.ErrStorageUnavailable):
		h.logger.WithError(err).WithField("date", date).Warn("Dataset storage unavailable")
		respondError(w, http.StatusServiceUnavailable, "Dataset storage unavailable")
	default:
		h.logger.WithError(err).WithField("date", date).Error("Failed to load dataset")
		respondError(w, http.StatusInternalServerError, "Failed to load dataset")
	}
	return nil, false
}

func latest(labels []string) string {
	out := labels[0]
	for _, l := range labels[1:] {
		if dataset.LabelAtOrAfter(l, out) {
			out = l
		}
	}
	return out
}
