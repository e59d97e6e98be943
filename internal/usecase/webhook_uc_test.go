//go:build !integration

package usecase_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"podcast-subscription-backend/internal/domain"
	"podcast-subscription-backend/internal/domain/model"
	"podcast-subscription-backend/internal/usecase"
)

// fakeJWS builds a structurally valid, unsigned three-segment token around
// the given payload.
func fakeJWS(t *testing.T, payload any) string {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"ES256"}`))
	body := base64.RawURLEncoding.EncodeToString(b)
	return header + "." + body + ".c2ln"
}

func notificationBody(t *testing.T, notificationType, environment, otid string) []byte {
	t.Helper()
	txInfo := fakeJWS(t, map[string]string{"originalTransactionId": otid})
	signed := fakeJWS(t, map[string]any{
		"notificationType": notificationType,
		"data": map[string]string{
			"environment":           environment,
			"signedTransactionInfo": txInfo,
		},
	})
	raw, err := json.Marshal(map[string]string{"signedPayload": signed})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestWebhookUseCase_ProcessAppleNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("should terminate the matching subscription on EXPIRED", func(t *testing.T) {
		subs := usecase.NewMockSubscriptionRepo()
		sub := appleSub("otid-1")
		if err := subs.Insert(ctx, sub); err != nil {
			t.Fatal(err)
		}

		uc := usecase.NewWebhookUseCase(subs, &usecase.MockForwarder{}, true, usecase.NewTestLogger())

		before := time.Now().UTC()
		if err := uc.ProcessAppleNotification(ctx, notificationBody(t, "EXPIRED", "Production", "otid-1")); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}

		got, _, _ := subs.Get(ctx, "user-1", sub.ID)
		if got.End == nil || got.End.Before(before) {
			t.Errorf("end = %v, want set to the processing time", got.End)
		}
		pay := got.Payments[0].(*model.ApplePayment)
		if pay.To == nil || !pay.To.Equal(*got.End) {
			t.Errorf("payment to = %v, want %v", pay.To, got.End)
		}
	})

	t.Run("should acknowledge with no error when nothing matches", func(t *testing.T) {
		subs := usecase.NewMockSubscriptionRepo()
		uc := usecase.NewWebhookUseCase(subs, &usecase.MockForwarder{}, true, usecase.NewTestLogger())

		if err := uc.ProcessAppleNotification(ctx, notificationBody(t, "EXPIRED", "Production", "unknown")); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
	})

	t.Run("should not terminate an already ended subscription again", func(t *testing.T) {
		subs := usecase.NewMockSubscriptionRepo()
		sub := appleSub("otid-1")
		past := time.Now().UTC().Add(-time.Hour)
		sub.Terminate(past, past)
		if err := subs.Insert(ctx, sub); err != nil {
			t.Fatal(err)
		}

		uc := usecase.NewWebhookUseCase(subs, &usecase.MockForwarder{}, true, usecase.NewTestLogger())
		if err := uc.ProcessAppleNotification(ctx, notificationBody(t, "EXPIRED", "Production", "otid-1")); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}

		got, _, _ := subs.Get(ctx, "user-1", sub.ID)
		if !got.End.Equal(past) {
			t.Errorf("end = %v, want the original %v", got.End, past)
		}
	})

	t.Run("should ignore other notification types", func(t *testing.T) {
		subs := usecase.NewMockSubscriptionRepo()
		sub := appleSub("otid-1")
		if err := subs.Insert(ctx, sub); err != nil {
			t.Fatal(err)
		}

		uc := usecase.NewWebhookUseCase(subs, &usecase.MockForwarder{}, true, usecase.NewTestLogger())
		if err := uc.ProcessAppleNotification(ctx, notificationBody(t, "DID_RENEW", "Production", "otid-1")); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		got, _, _ := subs.Get(ctx, "user-1", sub.ID)
		if got.End != nil {
			t.Errorf("end = %v, want nil", got.End)
		}
	})

	t.Run("should forward a sandbox notification verbatim on production", func(t *testing.T) {
		subs := usecase.NewMockSubscriptionRepo()
		forwarder := &usecase.MockForwarder{}
		uc := usecase.NewWebhookUseCase(subs, forwarder, true, usecase.NewTestLogger())

		raw := notificationBody(t, "EXPIRED", "Sandbox", "otid-1")
		if err := uc.ProcessAppleNotification(ctx, raw); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if len(forwarder.Payloads) != 1 || string(forwarder.Payloads[0]) != string(raw) {
			t.Fatalf("expected the raw body forwarded once, got %d payloads", len(forwarder.Payloads))
		}
	})

	t.Run("should mirror a forward failure", func(t *testing.T) {
		forwarder := &usecase.MockForwarder{
			ForwardFunc: func(ctx context.Context, payload []byte) error {
				return fmt.Errorf("forward target answered 502")
			},
		}
		uc := usecase.NewWebhookUseCase(usecase.NewMockSubscriptionRepo(), forwarder, true, usecase.NewTestLogger())

		err := uc.ProcessAppleNotification(ctx, notificationBody(t, "EXPIRED", "Sandbox", "otid-1"))
		if err == nil {
			t.Fatal("expected the forward failure to propagate")
		}
	})

	t.Run("should process a sandbox notification locally off production", func(t *testing.T) {
		subs := usecase.NewMockSubscriptionRepo()
		sub := appleSub("otid-1")
		if err := subs.Insert(ctx, sub); err != nil {
			t.Fatal(err)
		}
		forwarder := &usecase.MockForwarder{}
		uc := usecase.NewWebhookUseCase(subs, forwarder, false, usecase.NewTestLogger())

		if err := uc.ProcessAppleNotification(ctx, notificationBody(t, "EXPIRED", "Sandbox", "otid-1")); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if len(forwarder.Payloads) != 0 {
			t.Error("sandbox deployment must not forward")
		}
		got, _, _ := subs.Get(ctx, "user-1", sub.ID)
		if got.End == nil {
			t.Error("expected the subscription terminated locally")
		}
	})

	t.Run("should reject malformed payloads", func(t *testing.T) {
		uc := usecase.NewWebhookUseCase(usecase.NewMockSubscriptionRepo(), &usecase.MockForwarder{}, true, usecase.NewTestLogger())

		cases := map[string][]byte{
			"not json":          []byte("nope"),
			"missing payload":   []byte(`{}`),
			"two segments":      []byte(`{"signedPayload":"a.b"}`),
			"bad base64":        []byte(`{"signedPayload":"a.%%%.c"}`),
			"non-json envelope": []byte(`{"signedPayload":"a.` + base64.RawURLEncoding.EncodeToString([]byte("hi")) + `.c"}`),
		}
		for name, raw := range cases {
			t.Run(name, func(t *testing.T) {
				err := uc.ProcessAppleNotification(ctx, raw)
				if !errors.Is(err, domain.ErrInvalidArgument) {
					t.Fatalf("expected ErrInvalidArgument, got: %v", err)
				}
			})
		}
	})
}
