//go:build !integration

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"podcast-subscription-backend/internal/domain"
	"podcast-subscription-backend/internal/domain/model"
	"podcast-subscription-backend/internal/infra/iap"
	"podcast-subscription-backend/internal/usecase"
)

const testJWTSecret = "test-secret"
const testCronSecret = "cron-secret"

type mockPurchaseUC struct {
	CreateFunc func(ctx context.Context, req usecase.CreateSubscriptionRequest) (*model.Subscription, error)
	ListFunc   func(ctx context.Context, userID string) ([]*model.Subscription, error)
}

func (m *mockPurchaseUC) CreateSubscription(ctx context.Context, req usecase.CreateSubscriptionRequest) (*model.Subscription, error) {
	return m.CreateFunc(ctx, req)
}

func (m *mockPurchaseUC) ListSubscriptions(ctx context.Context, userID string) ([]*model.Subscription, error) {
	return m.ListFunc(ctx, userID)
}

type mockWebhookUC struct {
	ProcessFunc func(ctx context.Context, raw []byte) error
}

func (m *mockWebhookUC) ProcessAppleNotification(ctx context.Context, raw []byte) error {
	return m.ProcessFunc(ctx, raw)
}

type mockReconcileUC struct {
	RunFunc func(ctx context.Context) (int, error)
}

func (m *mockReconcileUC) Run(ctx context.Context) (int, error) {
	return m.RunFunc(ctx)
}

type serverDeps struct {
	purchase  *mockPurchaseUC
	webhook   *mockWebhookUC
	reconcile *mockReconcileUC
}

func newTestServer() (*serverDeps, http.Handler) {
	deps := &serverDeps{
		purchase:  &mockPurchaseUC{},
		webhook:   &mockWebhookUC{},
		reconcile: &mockReconcileUC{},
	}
	logger := zerolog.Nop()
	srv := NewServer(deps.purchase, deps.webhook, deps.reconcile, NewAuthManager(testJWTSecret), testCronSecret, &logger)
	return deps, srv.Router()
}

func sessionToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func testSubscription() *model.Subscription {
	now := time.Now().UTC()
	return &model.Subscription{
		ID:       "sub-1",
		OfficeID: "office-1",
		UserID:   "user-1",
		Start:    now,
		Payments: model.Payments{&model.ApplePayment{
			From:                  now,
			OriginalTransactionID: "otid-1",
			OriginalPurchaseDate:  now,
			ProductID:             "monthly",
			Modified:              now,
		}},
		Created:  now,
		Modified: now,
	}
}

func createBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"data": "receipt-blob",
		"extra": map[string]string{
			"platform": "Apple",
			"officeId": "office-1",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewBuffer(b)
}

func TestCreateSubscriptionHandler(t *testing.T) {
	t.Run("should create and strip payments from the response", func(t *testing.T) {
		deps, router := newTestServer()
		deps.purchase.CreateFunc = func(ctx context.Context, req usecase.CreateSubscriptionRequest) (*model.Subscription, error) {
			if req.UserID != "user-1" || req.Platform != model.PlatformApple || req.Receipt != "receipt-blob" {
				t.Errorf("unexpected request: %+v", req)
			}
			return testSubscription(), nil
		}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user-1/subscriptions", createBody(t))
		req.Header.Set("Authorization", "Bearer "+sessionToken(t, "user-1"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201 (%s)", rec.Code, rec.Body.String())
		}
		if strings.Contains(rec.Body.String(), "payments") || strings.Contains(rec.Body.String(), "otid-1") {
			t.Errorf("payments leaked into the response: %s", rec.Body.String())
		}
		var res struct {
			Data model.Subscription `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatal(err)
		}
		if res.Data.ID != "sub-1" {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("should require a session token", func(t *testing.T) {
		_, router := newTestServer()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user-1/subscriptions", createBody(t))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("should forbid acting on another user's partition", func(t *testing.T) {
		_, router := newTestServer()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user-1/subscriptions", createBody(t))
		req.Header.Set("Authorization", "Bearer "+sessionToken(t, "someone-else"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("should map a duplicate purchase to 409", func(t *testing.T) {
		deps, router := newTestServer()
		deps.purchase.CreateFunc = func(ctx context.Context, req usecase.CreateSubscriptionRequest) (*model.Subscription, error) {
			return nil, domain.ErrDuplicatePurchase
		}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user-1/subscriptions", createBody(t))
		req.Header.Set("Authorization", "Bearer "+sessionToken(t, "user-1"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("should map vendor rejections to 400 with detail", func(t *testing.T) {
		deps, router := newTestServer()
		deps.purchase.CreateFunc = func(ctx context.Context, req usecase.CreateSubscriptionRequest) (*model.Subscription, error) {
			return nil, &iap.AppleAPIError{Code: 4040001, Message: "Account not found."}
		}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user-1/subscriptions", createBody(t))
		req.Header.Set("Authorization", "Bearer "+sessionToken(t, "user-1"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Account not found.") {
			t.Errorf("vendor detail missing from body: %s", rec.Body.String())
		}
	})

	t.Run("should map transport failures to 500 without detail", func(t *testing.T) {
		deps, router := newTestServer()
		deps.purchase.CreateFunc = func(ctx context.Context, req usecase.CreateSubscriptionRequest) (*model.Subscription, error) {
			return nil, &iap.NetworkError{Op: "POST /verifyReceipt", Err: errors.New("timeout")}
		}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user-1/subscriptions", createBody(t))
		req.Header.Set("Authorization", "Bearer "+sessionToken(t, "user-1"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "timeout") {
			t.Errorf("internal detail leaked: %s", rec.Body.String())
		}
	})

	t.Run("should reject an unknown platform", func(t *testing.T) {
		_, router := newTestServer()

		b, _ := json.Marshal(map[string]any{
			"data":  "receipt-blob",
			"extra": map[string]string{"platform": "Amazon", "officeId": "office-1"},
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user-1/subscriptions", bytes.NewBuffer(b))
		req.Header.Set("Authorization", "Bearer "+sessionToken(t, "user-1"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}

func TestListSubscriptionsHandler(t *testing.T) {
	t.Run("should list with payments stripped", func(t *testing.T) {
		deps, router := newTestServer()
		deps.purchase.ListFunc = func(ctx context.Context, userID string) ([]*model.Subscription, error) {
			return []*model.Subscription{testSubscription()}, nil
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/user-1/subscriptions", nil)
		req.Header.Set("Authorization", "Bearer "+sessionToken(t, "user-1"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "payments") {
			t.Errorf("payments leaked into the response: %s", rec.Body.String())
		}
	})

	t.Run("should map an unknown user to 404", func(t *testing.T) {
		deps, router := newTestServer()
		deps.purchase.ListFunc = func(ctx context.Context, userID string) ([]*model.Subscription, error) {
			return nil, domain.ErrNotFound
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/user-1/subscriptions", nil)
		req.Header.Set("Authorization", "Bearer "+sessionToken(t, "user-1"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})
}

func TestCronHandler(t *testing.T) {
	t.Run("should reject a missing or wrong secret", func(t *testing.T) {
		deps, router := newTestServer()
		deps.reconcile.RunFunc = func(ctx context.Context) (int, error) {
			t.Error("reconcile must not run without auth")
			return 0, nil
		}

		for _, secret := range []string{"", "wrong"} {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/cron", nil)
			if secret != "" {
				req.Header.Set("X-Cron-Secret", secret)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		}
	})

	t.Run("should run the pass and report the count", func(t *testing.T) {
		deps, router := newTestServer()
		deps.reconcile.RunFunc = func(ctx context.Context) (int, error) {
			return 3, nil
		}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/cron", nil)
		req.Header.Set("X-Cron-Secret", testCronSecret)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var res struct {
			Data map[string]int `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatal(err)
		}
		if res.Data["terminated"] != 3 {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})
}

func TestAppleWebhookHandler(t *testing.T) {
	t.Run("should acknowledge a processed notification", func(t *testing.T) {
		deps, router := newTestServer()
		deps.webhook.ProcessFunc = func(ctx context.Context, raw []byte) error {
			return nil
		}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/subscriptions/apple", strings.NewReader(`{"signedPayload":"a.b.c"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("should reject a malformed notification", func(t *testing.T) {
		deps, router := newTestServer()
		deps.webhook.ProcessFunc = func(ctx context.Context, raw []byte) error {
			return domain.ErrInvalidArgument
		}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/subscriptions/apple", strings.NewReader("junk"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("should fail the request when forwarding fails", func(t *testing.T) {
		deps, router := newTestServer()
		deps.webhook.ProcessFunc = func(ctx context.Context, raw []byte) error {
			return errors.New("forward target answered 502")
		}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/subscriptions/apple", strings.NewReader(`{"signedPayload":"a.b.c"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
	})
}

func TestHealthAndMetrics(t *testing.T) {
	_, router := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}
}
