package iap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"podcast-subscription-backend/internal/domain/model"
	"podcast-subscription-backend/internal/domain/ports/adapter"
)

const (
	googlePublisherLiveURL  = "https://androidpublisher.googleapis.com/androidpublisher/v3"
	googleOAuthTokenLiveURL = "https://oauth2.googleapis.com/token"
	appleStoreKitLiveURL    = "https://api.storekit.itunes.apple.com/inApps/v1"
	appleStoreKitSandboxURL = "https://api.storekit-sandbox.itunes.apple.com/inApps/v1"
	appleITunesLiveURL      = "https://buy.itunes.apple.com"
	appleITunesSandboxURL   = "https://sandbox.itunes.apple.com"

	appleTokenAudience = "appstoreconnect-v1"
	googleOAuthScope   = "https://www.googleapis.com/auth/androidpublisher"

	tokenLifetime  = 20 * time.Minute
	defaultTimeout = 60 * time.Second
)

// Credentials holds the vendor configuration. Read-only after construction;
// concurrent calls share it without locking because every call mints its own
// token.
type Credentials struct {
	AppleBundleID             string
	AppleKeyID                string
	AppleKey                  string // EC P-256 private key, PEM
	AppleSharedSecret         string
	AppleIssuer               string
	GoogleServiceAccountEmail string
	GoogleKey                 string // RSA private key, PEM
}

var _ adapter.PurchaseGateway = (*Gateway)(nil)

// Gateway executes authenticated calls against the Apple and Google
// purchase-validation APIs.
type Gateway struct {
	client *http.Client
	creds  Credentials
	log    *zerolog.Logger

	// Endpoint bases, overridable in tests.
	publisherURL     string
	oauthTokenURL    string
	storeKitLiveURL  string
	storeKitPlayURL  string
	itunesLiveURL    string
	itunesSandboxURL string
}

// NewGateway builds a gateway with the given credentials. A non-positive
// timeout falls back to 60s.
func NewGateway(creds Credentials, timeout time.Duration, logger *zerolog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	l := logger.With().Str("component", "iap").Logger()
	return &Gateway{
		client:           &http.Client{Timeout: timeout},
		creds:            creds,
		log:              &l,
		publisherURL:     googlePublisherLiveURL,
		oauthTokenURL:    googleOAuthTokenLiveURL,
		storeKitLiveURL:  appleStoreKitLiveURL,
		storeKitPlayURL:  appleStoreKitSandboxURL,
		itunesLiveURL:    appleITunesLiveURL,
		itunesSandboxURL: appleITunesSandboxURL,
	}
}

// call performs one authenticated request. A fresh bearer token is minted per
// call; tokens are not cached. Non-200 answers are mapped through the
// vendor's error envelope, 200 bodies are decoded into out.
func (g *Gateway) call(ctx context.Context, method, url string, body any, platform model.Platform, out any) error {
	var token string
	var err error
	switch platform {
	case model.PlatformApple:
		token, err = g.appleToken(time.Now())
	case model.PlatformGoogle:
		token, err = g.googleToken(ctx, time.Now())
	default:
		return &ParseError{Reason: fmt.Sprintf("unknown platform %q", platform)}
	}
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &ParseError{Reason: fmt.Sprintf("could not encode request body: %v", err)}
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return &ParseError{Reason: fmt.Sprintf("could not build request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := g.client.Do(req)
	if err != nil {
		return &NetworkError{Op: method + " " + url, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return &NetworkError{Op: "read " + url, Err: err}
	}

	if res.StatusCode != http.StatusOK {
		return g.apiError(platform, res.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &SerializationError{Body: string(raw), Err: err}
	}
	return nil
}

// apiError parses the vendor-specific error envelope; if that fails too, it
// synthesizes a generic error carrying the raw status and body.
func (g *Gateway) apiError(platform model.Platform, status int, raw []byte) error {
	switch platform {
	case model.PlatformApple:
		var e struct {
			ErrorCode    AppleAPIErrorCode `json:"errorCode"`
			ErrorMessage string            `json:"errorMessage"`
		}
		if err := json.Unmarshal(raw, &e); err != nil || e.ErrorMessage == "" {
			return &AppleAPIError{
				Code:    AppleAPIErrorUnknown,
				Message: fmt.Sprintf("Unknown error (%d: %s)", status, raw),
			}
		}
		return &AppleAPIError{Code: e.ErrorCode, Message: e.ErrorMessage}
	default:
		var e struct {
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &e); err != nil || e.Error.Message == "" {
			return &GoogleAPIError{
				Code:    0,
				Message: fmt.Sprintf("Unknown error (%d: %s)", status, raw),
			}
		}
		return &GoogleAPIError{Code: e.Error.Code, Message: e.Error.Message}
	}
}
