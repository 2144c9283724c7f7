package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	warningsvc "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/warnings"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/transport/http/dto"
	httperrors "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/transport/http/errors"
)

type WarningsService interface {
	Warnings(ctx context.Context, chatID, userID int64) (warningsvc.Record, error)
	ResetWarnings(ctx context.Context, chatID, userID int64) error
}

type WarningsHandler struct {
	ledger WarningsService
}

func NewWarningsHandler(ledger WarningsService) *WarningsHandler {
	return &WarningsHandler{ledger: ledger}
}

func (h *WarningsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeInternal(w, "WARNINGS_SERVICE_UNAVAILABLE", "warnings service is unavailable")
		return
	}

	chatID, userID, ok := warningTargetFromRequest(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid chat or user id")
		return
	}

	record, err := h.ledger.Warnings(r.Context(), chatID, userID)
	if err != nil {
		if errors.Is(err, warningsvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "invalid chat or user id")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to load warning record")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.WarningsResponse{
		ChatID:        chatID,
		UserID:        userID,
		Count:         record.Count,
		LastWarningAt: record.LastWarningAt,
		Exists:        record.Exists,
	})
}

func (h *WarningsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeInternal(w, "WARNINGS_SERVICE_UNAVAILABLE", "warnings service is unavailable")
		return
	}

	chatID, userID, ok := warningTargetFromRequest(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid chat or user id")
		return
	}

	if err := h.ledger.ResetWarnings(r.Context(), chatID, userID); err != nil {
		if errors.Is(err, warningsvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "invalid chat or user id")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to reset warnings")
		return
	}

	httperrors.Write(w, http.StatusOK, map[string]any{"ok": true})
}

func warningTargetFromRequest(r *http.Request) (int64, int64, bool) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil || chatID == 0 {
		return 0, 0, false
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID == 0 {
		return 0, 0, false
	}
	return chatID, userID, true
}
