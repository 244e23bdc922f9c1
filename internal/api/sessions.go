package api

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/user/ptyhub/internal/buffer"
	"github.com/user/ptyhub/internal/session"
)

// webAPIParent owns sessions created over HTTP.
const webAPIParent = "web-api"

type createSessionRequest struct {
	Command     any               `json:"command"`
	Args        []string          `json:"args"`
	Description string            `json:"description"`
	Workdir     string            `json:"workdir"`
	Env         map[string]string `json:"env"`
}

type inputRequest struct {
	Data any `json:"data"`
}

type resizeRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type plainBufferResponse struct {
	Plain      string `json:"plain"`
	ByteLength int    `json:"byteLength"`
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, h.sessions.List())
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	command, ok := req.Command.(string)
	if !ok || strings.TrimSpace(command) == "" {
		jsonError(w, http.StatusBadRequest, "Command is required")
		return
	}

	info, err := h.sessions.Spawn(session.SpawnOptions{
		Command:         command,
		Args:            req.Args,
		Title:           req.Description,
		Description:     req.Description,
		Workdir:         req.Workdir,
		Env:             req.Env,
		ParentSessionID: webAPIParent,
	})
	if err != nil {
		status, msg := mapSessionError(err)
		jsonError(w, status, msg)
		return
	}
	jsonResponse(w, http.StatusOK, info)
}

// clearSessions kills and removes every session, or with ?parent= only
// the children of that session.
func (h *handler) clearSessions(w http.ResponseWriter, r *http.Request) {
	if parent := r.URL.Query().Get("parent"); parent != "" {
		h.sessions.CleanupBySession(parent)
	} else {
		h.sessions.ClearAll()
	}
	jsonSuccess(w)
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	info, ok := h.sessions.Get(r.PathValue("id"))
	if !ok {
		jsonError(w, http.StatusNotFound, "Session not found")
		return
	}
	jsonResponse(w, http.StatusOK, info)
}

func (h *handler) killSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Kill(r.PathValue("id"), false) {
		jsonError(w, http.StatusBadRequest, "Failed to kill session")
		return
	}
	jsonSuccess(w)
}

func (h *handler) cleanupSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Kill(r.PathValue("id"), true) {
		jsonError(w, http.StatusBadRequest, "Failed to kill session")
		return
	}
	jsonSuccess(w)
}

func (h *handler) sendInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	data, ok := req.Data.(string)
	if !ok || data == "" {
		jsonError(w, http.StatusBadRequest, "Data field is required and must be a string")
		return
	}
	if !h.sessions.Write(r.PathValue("id"), data) {
		jsonError(w, http.StatusBadRequest, "Failed to write to session")
		return
	}
	jsonSuccess(w)
}

func (h *handler) resizeSession(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if req.Cols <= 0 || req.Rows <= 0 || req.Cols > 0xffff || req.Rows > 0xffff {
		jsonError(w, http.StatusBadRequest, "cols and rows must be between 1 and 65535")
		return
	}
	if err := h.sessions.Resize(r.PathValue("id"), uint16(req.Cols), uint16(req.Rows)); err != nil {
		status, msg := mapSessionError(err)
		jsonError(w, status, msg)
		return
	}
	jsonSuccess(w)
}

func (h *handler) getRawBuffer(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.sessions.RawBuffer(r.PathValue("id"))
	if !ok {
		jsonError(w, http.StatusNotFound, "Session not found")
		return
	}
	jsonResponse(w, http.StatusOK, raw)
}

func (h *handler) getPlainBuffer(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.sessions.RawBuffer(r.PathValue("id"))
	if !ok {
		jsonError(w, http.StatusNotFound, "Session not found")
		return
	}
	plain := ansi.Strip(raw.Raw)
	jsonResponse(w, http.StatusOK, plainBufferResponse{Plain: plain, ByteLength: len(plain)})
}

func (h *handler) readOutput(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, ok := h.sessions.Read(r.PathValue("id"), offset, limit)
	if !ok {
		jsonError(w, http.StatusNotFound, "Session not found")
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

func (h *handler) searchOutput(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("pattern")
	if expr == "" {
		jsonError(w, http.StatusBadRequest, "pattern is required")
		return
	}
	pattern, err := regexp.Compile(expr)
	if err != nil {
		jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid pattern: %v", err))
		return
	}
	offset, limit, err := pageParams(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, ok := h.sessions.Search(r.PathValue("id"), pattern, offset, limit)
	if !ok {
		jsonError(w, http.StatusNotFound, "Session not found")
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// pageParams reads offset (default 0) and limit (default unlimited).
func pageParams(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	limit = buffer.NoLimit
	if raw := q.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return 0, 0, errors.New("limit must be a non-negative integer")
		}
	}
	return offset, limit, nil
}

func mapSessionError(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "Session not found"
	case errors.Is(err, session.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
