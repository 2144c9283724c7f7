package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	policysvc "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/policy"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/transport/http/dto"
	httperrors "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/transport/http/errors"
)

type PolicyService interface {
	Get(ctx context.Context, chatID int64) (policysvc.ChatPolicy, error)
	Update(ctx context.Context, p policysvc.ChatPolicy) error
}

type PolicyHandler struct {
	policies PolicyService
}

func NewPolicyHandler(policies PolicyService) *PolicyHandler {
	return &PolicyHandler{policies: policies}
}

func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.policies == nil {
		writeInternal(w, "POLICY_SERVICE_UNAVAILABLE", "policy service is unavailable")
		return
	}

	chatID, ok := chatIDFromRequest(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid chat id")
		return
	}

	p, err := h.policies.Get(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, policysvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "invalid chat id")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to load chat policy")
		return
	}

	httperrors.Write(w, http.StatusOK, policyResponse(p))
}

func (h *PolicyHandler) Put(w http.ResponseWriter, r *http.Request) {
	if h.policies == nil {
		writeInternal(w, "POLICY_SERVICE_UNAVAILABLE", "policy service is unavailable")
		return
	}

	chatID, ok := chatIDFromRequest(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid chat id")
		return
	}

	var req dto.PolicyUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	err := h.policies.Update(r.Context(), policysvc.ChatPolicy{
		ChatID:               chatID,
		BioProtectionEnabled: req.BioProtectionEnabled,
		WarningLimit:         req.WarningLimit,
		MuteDuration:         time.Duration(req.MuteDurationSec) * time.Second,
		RequiredChannels:     req.RequiredChannels,
		RequiredInviteCount:  req.RequiredInviteCount,
		AutoDeleteEnabled:    req.AutoDeleteEnabled,
		AutoDelete:           time.Duration(req.AutoDeleteSec) * time.Second,
	})
	if err != nil {
		if errors.Is(err, policysvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "invalid policy fields")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to store chat policy")
		return
	}

	p, err := h.policies.Get(r.Context(), chatID)
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to load chat policy")
		return
	}

	httperrors.Write(w, http.StatusOK, policyResponse(p))
}

func policyResponse(p policysvc.ChatPolicy) dto.PolicyResponse {
	channels := p.RequiredChannels
	if channels == nil {
		channels = []string{}
	}

	return dto.PolicyResponse{
		ChatID:               p.ChatID,
		BioProtectionEnabled: p.BioProtectionEnabled,
		WarningLimit:         p.WarningLimit,
		MuteDurationSec:      int64(p.MuteDuration / time.Second),
		RequiredChannels:     channels,
		RequiredInviteCount:  p.RequiredInviteCount,
		AutoDeleteEnabled:    p.AutoDeleteEnabled,
		AutoDeleteSec:        int64(p.AutoDelete / time.Second),
	}
}

func chatIDFromRequest(r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "chatID")
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || chatID == 0 {
		return 0, false
	}
	return chatID, true
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}
