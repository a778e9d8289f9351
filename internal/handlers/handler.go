package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/ilyrer/immonow-comms/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db    store.ChannelStore
	redis *store.RedisStore
}

// NewHandler creates a new Handler with the given stores.
func NewHandler(db store.ChannelStore, redis *store.RedisStore) *Handler {
	return &Handler{db: db, redis: redis}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// StoreError maps store sentinel errors to HTTP responses.
func (h *Handler) StoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrForbidden):
		h.Error(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, store.ErrDuplicateMember):
		h.Error(w, http.StatusConflict, "member already exists")
	case errors.Is(err, store.ErrLastOwner):
		h.Error(w, http.StatusConflict, "channel must retain at least one owner")
	case errors.Is(err, store.ErrAlreadyDeleted):
		h.Error(w, http.StatusConflict, "message already deleted")
	case errors.Is(err, store.ErrEmptyContent):
		h.Error(w, http.StatusUnprocessableEntity, "content is required")
	case errors.Is(err, store.ErrThreadCrossChannel):
		h.Error(w, http.StatusUnprocessableEntity, "parent message belongs to a different channel")
	case errors.Is(err, store.ErrInvalidResourceType):
		h.Error(w, http.StatusUnprocessableEntity, "resource_type must be contact, property or task")
	case errors.Is(err, store.ErrEmptyResourceID):
		h.Error(w, http.StatusUnprocessableEntity, "resource_id is required")
	default:
		h.Error(w, http.StatusInternalServerError, "database error")
	}
}

// Page is the pagination envelope for all list responses. Items are
// ordered server-side; clients must not re-sort.
type Page struct {
	Items interface{} `json:"items"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
}

// pageParams parses page/size query params with defaults and caps.
func pageParams(r *http.Request) (page, size int) {
	page = 1
	if p := r.URL.Query().Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	size = 50
	if s := r.URL.Query().Get("size"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			size = v
		}
	}
	if size > 200 {
		size = 200
	}
	return page, size
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters, on rune boundaries so multi-byte
	// characters never get split
	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}

	return name
}
