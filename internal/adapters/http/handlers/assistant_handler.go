// Package handlers agrupa os handlers HTTP do assistente protegidos pelo limitador.
package handlers

import (
	"net/http"
	"time"

	"github.com/greenpay/usage-limiter/internal/adapters/http/middleware"
	"github.com/greenpay/usage-limiter/internal/core/ports"
	"github.com/greenpay/usage-limiter/internal/pkg/logger"
	"github.com/greenpay/usage-limiter/internal/pkg/response"
	"github.com/greenpay/usage-limiter/internal/pkg/validator"
)

type AssistantHandler struct {
	limiter ports.UsageLimiter
}

func NewAssistantHandler(limiter ports.UsageLimiter) *AssistantHandler {
	return &AssistantHandler{limiter: limiter}
}

type MessageRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
}

type MessageResponse struct {
	Accepted          bool `json:"accepted"`
	RemainingRequests int  `json:"remainingRequests"`
}

type UsageResponse struct {
	MinuteCount       int       `json:"minuteCount"`
	MinuteLimit       int       `json:"minuteLimit"`
	MinuteResetAt     time.Time `json:"minuteResetAt"`
	DailyCount        int       `json:"dailyCount"`
	DailyLimit        int       `json:"dailyLimit"`
	DailyResetAt      time.Time `json:"dailyResetAt"`
	RemainingRequests int       `json:"remainingRequests"`
}

// PostMessage aceita uma mensagem para o assistente. Deve ficar atrás do
// middleware do limitador; a chamada ao provedor de IA acontece fora deste serviço.
func (h *AssistantHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	decision, _ := middleware.DecisionFromContext(r.Context())
	response.OK(w, MessageResponse{Accepted: true, RemainingRequests: decision.RemainingRequests})
}

// GetUsage mostra o consumo atual sem gastar uma requisição.
func (h *AssistantHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	usage, err := h.limiter.Usage(r.Context(), identity)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Str("identity", identity).Msg("failed to load usage")
		response.InternalError(w)
		return
	}

	response.OK(w, UsageResponse{
		MinuteCount:       usage.MinuteCount,
		MinuteLimit:       usage.MinuteLimit,
		MinuteResetAt:     usage.MinuteResetAt.UTC(),
		DailyCount:        usage.DailyCount,
		DailyLimit:        usage.DailyLimit,
		DailyResetAt:      usage.DailyResetAt.UTC(),
		RemainingRequests: usage.RemainingRequests,
	})
}

// Health responde ao probe de liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{"status": "ok"})
}
