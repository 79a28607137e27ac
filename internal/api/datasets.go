package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/catalog/profile"
	"github.com/duckmesh/tabletalk/internal/storage"
)

type datasetView struct {
	TargetID    string           `json:"target_id"`
	DisplayName string           `json:"display_name"`
	ObjectPath  string           `json:"object_path"`
	Ordinal     int              `json:"ordinal"`
	RowCount    int64            `json:"row_count"`
	Columns     []catalog.Column `json:"columns"`
	SampleRows  [][]any          `json:"sample_rows,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

func toDatasetView(entry catalog.Entry, withSamples bool) datasetView {
	view := datasetView{
		TargetID:    entry.TargetID,
		DisplayName: entry.DisplayName,
		ObjectPath:  entry.ObjectPath,
		Ordinal:     entry.Ordinal,
		RowCount:    entry.RowCount,
		Columns:     entry.Columns,
		CreatedAt:   entry.CreatedAt,
	}
	if view.Columns == nil {
		view.Columns = []catalog.Column{}
	}
	if withSamples {
		view.SampleRows = entry.SampleRows
	}
	return view
}

type registerDatasetRequest struct {
	ObjectPath  string `json:"object_path"`
	DisplayName string `json:"display_name"`
	TargetID    string `json:"target_id"`
}

func handleListDatasets(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", "catalog is not configured", true, nil)
		return
	}
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "USER_REQUIRED", err.Error(), false, nil)
		return
	}
	entries, err := deps.Catalog.GetEntries(r.Context(), userID)
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", err.Error(), true, nil)
		return
	}
	views := make([]datasetView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, toDatasetView(entry, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": views})
}

func handleGetDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", "catalog is not configured", true, nil)
		return
	}
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "USER_REQUIRED", err.Error(), false, nil)
		return
	}
	targetID := strings.TrimSpace(r.PathValue("target"))
	entry, err := deps.Catalog.GetEntry(r.Context(), targetID)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(r.Context(), w, http.StatusNotFound, "DATASET_NOT_FOUND", "dataset not found", false, map[string]any{"target_id": targetID})
		return
	case err != nil:
		writeError(r.Context(), w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", err.Error(), true, nil)
		return
	}
	// Datasets of other users are reported as missing.
	if entry.UserID != userID {
		writeError(r.Context(), w, http.StatusNotFound, "DATASET_NOT_FOUND", "dataset not found", false, map[string]any{"target_id": targetID})
		return
	}
	writeJSON(w, http.StatusOK, toDatasetView(entry, true))
}

func handleRegisterDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Registrar == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "REGISTRAR_UNAVAILABLE", "dataset registration is not configured", false, nil)
		return
	}
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "USER_REQUIRED", err.Error(), false, nil)
		return
	}
	var req registerDatasetRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, nil)
		return
	}
	req.ObjectPath = strings.TrimSpace(req.ObjectPath)
	if req.ObjectPath == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", "object_path is required", false, nil)
		return
	}

	entry, err := deps.Registrar.Register(r.Context(), profile.Request{
		TargetID:    strings.TrimSpace(req.TargetID),
		UserID:      userID,
		DisplayName: strings.TrimSpace(req.DisplayName),
		ObjectPath:  req.ObjectPath,
	})
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		writeError(r.Context(), w, http.StatusNotFound, "OBJECT_NOT_FOUND", "uploaded object not found", false, map[string]any{"object_path": req.ObjectPath})
		return
	case errors.Is(err, profile.ErrEmptySchema):
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "EMPTY_SCHEMA", err.Error(), false, map[string]any{"object_path": req.ObjectPath})
		return
	case err != nil:
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "dataset registration failed", "error", err, "object_path", req.ObjectPath)
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "REGISTRATION_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusCreated, toDatasetView(entry, true))
}
