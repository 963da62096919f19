// Package admin exposes the read-only query surface and the ban
// commands. Every endpoint is gated by the shared admin token.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/evenkeel/SatoshiStacks/internal/store"
	"github.com/evenkeel/SatoshiStacks/internal/table"
)

type Handler struct {
	store   *store.Store
	manager table.Manager
	token   string
	logger  zerolog.Logger
}

func NewHandler(st *store.Store, manager table.Manager, token string, logger zerolog.Logger) *Handler {
	return &Handler{store: st, manager: manager, token: token, logger: logger}
}

// Register mounts the admin endpoints.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/hand", h.gated(h.handleHand))
	mux.HandleFunc("/admin/hands", h.gated(h.handleHands))
	mux.HandleFunc("/admin/player", h.gated(h.handlePlayer))
	mux.HandleFunc("/admin/tables", h.gated(h.handleTables))
	mux.HandleFunc("/admin/stats", h.gated(h.handleStats))
	mux.HandleFunc("/admin/ban", h.gated(h.handleBan))
	mux.HandleFunc("/admin/unban", h.gated(h.handleUnban))
}

func (h *Handler) gated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-admin-token") != h.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (h *Handler) handleHand(w http.ResponseWriter, r *http.Request) {
	hand, err := h.store.GetHand(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		if errors.Is(err, store.ErrHandNotFound) {
			http.Error(w, "hand not found", http.StatusNotFound)
			return
		}
		h.internal(w, err)
		return
	}
	writeJSON(w, hand)
}

func (h *Handler) handleHands(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		http.Error(w, "identity required", http.StatusBadRequest)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	hands, err := h.store.ListHandsByIdentity(r.Context(), identity, limit)
	if err != nil {
		h.internal(w, err)
		return
	}
	writeJSON(w, hands)
}

func (h *Handler) handlePlayer(w http.ResponseWriter, r *http.Request) {
	player, err := h.store.GetPlayer(r.Context(), r.URL.Query().Get("identity"))
	if err != nil {
		if errors.Is(err, store.ErrPlayerNotFound) {
			http.Error(w, "player not found", http.StatusNotFound)
			return
		}
		h.internal(w, err)
		return
	}
	writeJSON(w, player)
}

func (h *Handler) handleTables(w http.ResponseWriter, r *http.Request) {
	type tableSummary struct {
		TableID string           `json:"table_id"`
		State   *table.TableView `json:"state"`
	}

	summaries := make([]tableSummary, 0)
	for _, id := range h.manager.ListTableIDs() {
		engine, err := h.manager.GetTable(id)
		if err != nil {
			continue
		}
		summaries = append(summaries, tableSummary{TableID: id, State: engine.View("")})
	}
	writeJSON(w, summaries)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	hands, err := h.store.CountHands(r.Context())
	if err != nil {
		h.internal(w, err)
		return
	}
	players, err := h.store.CountPlayers(r.Context())
	if err != nil {
		h.internal(w, err)
		return
	}
	writeJSON(w, map[string]int64{
		"hands":   hands,
		"players": players,
		"tables":  int64(len(h.manager.ListTableIDs())),
	})
}

type banRequest struct {
	Identity string `json:"identity,omitempty"`
	IP       string `json:"ip,omitempty"`
	Reason   string `json:"reason,omitempty"`
	BannedBy string `json:"banned_by,omitempty"`
}

func (h *Handler) handleBan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req banRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	switch {
	case req.Identity != "":
		if err := h.store.SetBanned(r.Context(), req.Identity, true, req.Reason); err != nil {
			h.internal(w, err)
			return
		}
	case req.IP != "":
		if err := h.store.BanIP(r.Context(), req.IP, req.Reason, req.BannedBy); err != nil {
			h.internal(w, err)
			return
		}
	default:
		http.Error(w, "identity or ip required", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

func (h *Handler) handleUnban(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req banRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	switch {
	case req.Identity != "":
		if err := h.store.SetBanned(r.Context(), req.Identity, false, ""); err != nil {
			h.internal(w, err)
			return
		}
	case req.IP != "":
		if err := h.store.UnbanIP(r.Context(), req.IP); err != nil {
			h.internal(w, err)
			return
		}
	default:
		http.Error(w, "identity or ip required", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

func (h *Handler) internal(w http.ResponseWriter, err error) {
	h.logger.Error().Err(err).Msg("admin query failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
