package api

import (
	"net/http"
	"strconv"

	"github.com/user/ptyhub/internal/store"
)

const defaultHistoryLimit = 100

func (h *handler) listHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		jsonError(w, http.StatusNotFound, "session history is disabled")
		return
	}

	q := r.URL.Query()
	filter := store.HistoryFilter{
		ParentSessionID: q.Get("parent"),
		Status:          q.Get("status"),
		Limit:           defaultHistoryLimit,
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			jsonError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	records, err := h.history.List(r.Context(), filter)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, records)
}
