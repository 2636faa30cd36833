package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/avdeyev/socialguard/internal/models"
	"github.com/avdeyev/socialguard/internal/services"
)

// GameHandler serves the game-plugin facing API: the blocking login gate,
// code confirmation and presence notifications.
type GameHandler struct {
	confirm *services.ConfirmService
	linking *services.LinkingService
	logger  *slog.Logger
}

func NewGameHandler(confirm *services.ConfirmService, linking *services.LinkingService, logger *slog.Logger) *GameHandler {
	return &GameHandler{
		confirm: confirm,
		linking: linking,
		logger:  logger,
	}
}

// Request DTOs

// LoginRequest represents a player attempting to join
type LoginRequest struct {
	Nickname string `json:"nickname" validate:"required,min=1,max=64"`
	IP       string `json:"ip" validate:"required,ip"`
}

// ConfirmRequest carries the in-game verification code
type ConfirmRequest struct {
	Nickname string `json:"nickname" validate:"required,min=1,max=64"`
	Code     int    `json:"code" validate:"required,gte=0"`
}

// PresenceRequest reports a join or leave event
type PresenceRequest struct {
	Nickname string `json:"nickname" validate:"required,min=1,max=64"`
	IP       string `json:"ip" validate:"omitempty,ip"`
}

// LoginResponse tells the plugin what to do with the player
type LoginResponse struct {
	Decision   string `json:"decision"`
	KickReason string `json:"kick_reason,omitempty"`
}

// Login handles POST /v1/game/login. The request blocks while a confirmation
// session is open; the plugin keeps the player waiting until it resolves.
// A dropped request abandons the session.
func (h *GameHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.confirm.Login(r.Context(), req.Nickname, req.IP)
	if err != nil {
		h.logger.Error("login gate failed",
			slog.String("nickname", req.Nickname),
			slog.Any("error", err))
		WriteInternalError(w, "failed to process login")
		return
	}

	WriteJSON(w, http.StatusOK, LoginResponse{
		Decision:   string(result.Decision),
		KickReason: result.KickReason,
	})
}

// Confirm handles POST /v1/game/confirm: the player entered a link code.
func (h *GameHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	err := h.linking.ConfirmCode(r.Context(), req.Nickname, req.Code)
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, map[string]string{"status": "linked"})
	case errors.Is(err, models.ErrNoPendingLink):
		WriteNotFound(w, "no pending link request for this nickname")
	case errors.Is(err, models.ErrWrongCode):
		WriteConflict(w, "wrong code, the link request was cancelled")
	case errors.Is(err, models.ErrAlreadyLinked):
		WriteConflict(w, "account is already linked")
	default:
		h.logger.Error("code confirmation failed",
			slog.String("nickname", req.Nickname),
			slog.Any("error", err))
		WriteInternalError(w, "failed to confirm code")
	}
}

// Joined handles POST /v1/game/joined.
func (h *GameHandler) Joined(w http.ResponseWriter, r *http.Request) {
	var req PresenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	if err := h.confirm.PlayerJoined(r.Context(), req.Nickname, req.IP); err != nil {
		h.logger.Error("join notification failed",
			slog.String("nickname", req.Nickname),
			slog.Any("error", err))
		WriteInternalError(w, "failed to process join")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Left handles POST /v1/game/left.
func (h *GameHandler) Left(w http.ResponseWriter, r *http.Request) {
	var req PresenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	if err := h.confirm.PlayerLeft(r.Context(), req.Nickname); err != nil {
		h.logger.Error("leave notification failed",
			slog.String("nickname", req.Nickname),
			slog.Any("error", err))
		WriteInternalError(w, "failed to process leave")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
