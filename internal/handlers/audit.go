package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// HandleAuditList returns recent enforcement records, newest first.
// Accepts ?limit= and ?group= query parameters.
func (h *Handler) HandleAuditList(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(parsed, maxAuditLimit)
	}

	var (
		records interface{}
		err     error
	)
	if groupID := r.URL.Query().Get("group"); groupID != "" {
		records, err = h.audit.ListByGroup(r.Context(), groupID, limit)
	} else {
		records, err = h.audit.ListRecent(r.Context(), limit)
	}
	if err != nil {
		http.Error(w, "Failed to fetch audit records", http.StatusInternalServerError)
		log.Error().Err(err).Msg("Failed to list audit records")
		return
	}

	writeJSON(w, records, "audit")
}

// HandleAuditExport streams the full audit trail as zstd-compressed JSON.
func (h *Handler) HandleAuditExport(w http.ResponseWriter, r *http.Request) {
	records, err := h.audit.ListAll(r.Context())
	if err != nil {
		http.Error(w, "Failed to fetch audit records", http.StatusInternalServerError)
		log.Error().Err(err).Msg("Failed to list audit records for export")
		return
	}

	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", "attachment; filename=groupwarden-audit.json.zst")

	zw, err := zstd.NewWriter(w)
	if err != nil {
		http.Error(w, "Failed to create export stream", http.StatusInternalServerError)
		log.Error().Err(err).Msg("Failed to create zstd writer")
		return
	}

	encoder := json.NewEncoder(zw)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(records); err != nil {
		log.Error().Err(err).Msg("Failed to encode audit records for export")
	}
	if err := zw.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to flush audit export stream")
	}
}
