package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"podcast-subscription-backend/internal/domain"
	"podcast-subscription-backend/internal/domain/model"
	"podcast-subscription-backend/internal/infra/iap"
	"podcast-subscription-backend/internal/usecase"
)

// dataRequest / dataResponse are the envelope every client-facing route
// speaks: the payload under "data", auxiliary parameters under "extra".
type dataRequest struct {
	Data  string          `json:"data"`
	Extra json.RawMessage `json:"extra"`
}

type dataResponse struct {
	Data  any `json:"data"`
	Extra any `json:"extra,omitempty"`
}

type createSubscriptionExtra struct {
	Platform    string `json:"platform"`
	OfficeID    string `json:"officeId"`
	ProductID   string `json:"productId,omitempty"`
	PackageName string `json:"packageName,omitempty"`
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req dataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Data == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	var extra createSubscriptionExtra
	if err := json.Unmarshal(req.Extra, &extra); err != nil {
		http.Error(w, "Invalid request extra", http.StatusBadRequest)
		return
	}
	platform, err := model.ParsePlatform(extra.Platform)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sub, err := s.purchaseUC.CreateSubscription(r.Context(), usecase.CreateSubscriptionRequest{
		UserID:      userID,
		OfficeID:    extra.OfficeID,
		Receipt:     req.Data,
		Platform:    platform,
		ProductID:   extra.ProductID,
		PackageName: extra.PackageName,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, dataResponse{Data: stripPayments(sub)})
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	subs, err := s.purchaseUC.ListSubscriptions(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]*model.Subscription, 0, len(subs))
	for _, sub := range subs {
		out = append(out, stripPayments(sub))
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: out})
}

func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("X-Cron-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cronSecret)) != 1 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	n, err := s.reconcileUC.Run(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: map[string]int{"terminated": n}})
}

func (s *Server) handleAppleWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.webhookUC.ProcessAppleNotification(r.Context(), raw); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// stripPayments returns a copy safe for API responses. Payment records stay
// internal.
func stripPayments(sub *model.Subscription) *model.Subscription {
	out := *sub
	out.Payments = nil
	return &out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps errors to coarse HTTP categories while keeping the vendor
// detail in the message text.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appleErr *iap.AppleAPIError
	var googleErr *iap.GoogleAPIError
	var receiptErr *iap.InvalidReceiptError
	var productErr *iap.UnexpectedProductIDError
	var parseErr *iap.ParseError

	switch {
	case errors.Is(err, domain.ErrDuplicatePurchase):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, iap.ErrSubscriptionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, domain.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.As(err, &appleErr),
		errors.As(err, &googleErr),
		errors.As(err, &receiptErr),
		errors.As(err, &productErr),
		errors.As(err, &parseErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		if id, ok := r.Context().Value(ctxKeyTraceID).(string); ok {
			s.log.Error().Err(err).Str("trace_id", id).Msg("request failed")
		} else {
			s.log.Error().Err(err).Msg("request failed")
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
