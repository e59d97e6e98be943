package iap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// appleToken builds the short-lived ES256 credential for the App Store
// Server API.
// cf. https://developer.apple.com/documentation/appstoreserverapi/generating_tokens_for_api_requests
func (g *Gateway) appleToken(now time.Time) (string, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(g.creds.AppleKey))
	if err != nil {
		return "", &ParseError{Reason: fmt.Sprintf("could not parse apple signing key: %v", err)}
	}

	claims := NewClaims(
		g.creds.AppleIssuer,
		now,
		"",
		appleTokenAudience,
		uuid.NewString(),
		g.creds.AppleBundleID,
		now.Add(tokenLifetime),
	)

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = g.creds.AppleKeyID

	signed, err := token.SignedString(key)
	if err != nil {
		return "", &ParseError{Reason: fmt.Sprintf("could not sign apple token: %v", err)}
	}
	return signed, nil
}

// googleToken signs an RS256 assertion for the service account and exchanges
// it for an OAuth access token.
// cf. https://developers.google.com/identity/protocols/oauth2/service-account#httprest
func (g *Gateway) googleToken(ctx context.Context, now time.Time) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(g.creds.GoogleKey))
	if err != nil {
		return "", &ParseError{Reason: fmt.Sprintf("could not parse google signing key: %v", err)}
	}

	claims := NewClaims(
		g.creds.GoogleServiceAccountEmail,
		now,
		googleOAuthScope,
		g.oauthTokenURL,
		uuid.NewString(),
		g.creds.AppleBundleID,
		now.Add(tokenLifetime),
	)

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", &ParseError{Reason: fmt.Sprintf("could not sign google assertion: %v", err)}
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.oauthTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &ParseError{Reason: fmt.Sprintf("could not build token request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := g.client.Do(req)
	if err != nil {
		return "", &NetworkError{Op: "POST " + g.oauthTokenURL, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", &NetworkError{Op: "read " + g.oauthTokenURL, Err: err}
	}

	if res.StatusCode != http.StatusOK {
		var e struct {
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &e); err != nil || e.Error.Message == "" {
			return "", &GoogleAPIError{
				Code:    0,
				Message: fmt.Sprintf("Unknown error (%d: %s)", res.StatusCode, raw),
			}
		}
		return "", &GoogleAPIError{Code: e.Error.Code, Message: e.Error.Message}
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", &SerializationError{Body: string(raw), Err: err}
	}
	return body.AccessToken, nil
}
