package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shaharz/lumen/internal/domain"
	"github.com/shaharz/lumen/internal/observability"
)

// Handler handles HTTP requests.
type Handler struct {
	service *domain.GenerateService
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(service *domain.GenerateService) *Handler {
	return &Handler{
		service: service,
	}
}

// generateRequest is the inbound body of the generate endpoint.
type generateRequest struct {
	Model     string                   `json:"model"`
	Prompt    string                   `json:"prompt"`
	SessionID string                   `json:"session_id"`
	Options   domain.GenerationOptions `json:"options"`
}

// generateResponse is the one-shot success body.
type generateResponse struct {
	Result   string `json:"result"`
	Fallback bool   `json:"fallback,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleGenerate processes generation requests. The response shape depends on
// the matched model's delivery mode: JSON for one-shot providers, a
// text/event-stream of envelopes for streaming ones.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if strings.TrimSpace(body.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	ctx = observability.WithModel(ctx, body.Model)
	if body.SessionID != "" {
		ctx = observability.WithSessionID(ctx, body.SessionID)
	}

	logger := observability.FromContext(ctx)
	logger.Info("generation request received",
		observability.String("model", body.Model),
	)

	req := &domain.GenerationRequest{
		Model:   body.Model,
		Prompt:  body.Prompt,
		Options: body.Options,
	}

	dispatch, err := h.service.Prepare(ctx, body.SessionID, req)
	if err != nil {
		logger.Error("generation dispatch failed", observability.Error(err))
		writeError(w, statusFor(err), userMessage(err))
		return
	}

	ctx = observability.WithProvider(ctx, dispatch.Provider)

	if dispatch.Mode == domain.ModeStreaming {
		h.streamGenerate(ctx, w, dispatch, body.SessionID, body.Prompt)
		return
	}

	result, err := dispatch.Complete(ctx)
	if err != nil {
		observability.FromContext(ctx).Error("generation failed", observability.Error(err))
		writeError(w, http.StatusInternalServerError, userMessage(err))
		return
	}

	// Persistence failures are logged inside the service; the generated text
	// is still delivered.
	_ = h.service.SaveExchange(ctx, body.SessionID, body.Prompt, result.Text)

	w.Header().Set("Content-Type", "application/json")
	if encodeErr := json.NewEncoder(w).Encode(generateResponse{
		Result:   result.Text,
		Fallback: result.Fallback,
	}); encodeErr != nil {
		observability.FromContext(ctx).Error("failed to encode response", observability.Error(encodeErr))
	}
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		// Already written status, can't change it, just log.
		return
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

func statusFor(err error) int {
	if errors.Is(err, domain.ErrEmptyPrompt) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// userMessage maps the error taxonomy to the client-facing strings; wrapped
// provider diagnostics pass through untouched for everything else.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyPrompt):
		return "Prompt is required"
	case errors.Is(err, domain.ErrUnknownModel):
		return "Invalid model selected"
	default:
		return err.Error()
	}
}
