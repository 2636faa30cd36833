package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/avdeyev/socialguard/internal/models"
	"github.com/avdeyev/socialguard/internal/services"
	"github.com/go-chi/chi/v5"
)

// AdminHandler serves operator actions.
type AdminHandler struct {
	linking *services.LinkingService
	logger  *slog.Logger
}

func NewAdminHandler(linking *services.LinkingService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{linking: linking, logger: logger}
}

// ForceUnlink handles DELETE /v1/admin/links/{nickname}. It removes every
// channel identity of the account and skips the self-service guards.
func (h *AdminHandler) ForceUnlink(w http.ResponseWriter, r *http.Request) {
	nickname := chi.URLParam(r, "nickname")
	if nickname == "" {
		WriteBadRequest(w, "nickname is required")
		return
	}

	err := h.linking.ForceUnlink(r.Context(), nickname)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, models.ErrNotFound):
		WriteNotFound(w, "no link for this nickname")
	default:
		h.logger.Error("force unlink failed",
			slog.String("nickname", nickname),
			slog.Any("error", err))
		WriteInternalError(w, "failed to unlink")
	}
}
