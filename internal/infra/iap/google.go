package iap

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"podcast-subscription-backend/internal/domain/model"
	"podcast-subscription-backend/internal/domain/ports/adapter"
)

// googleSubscriptionResource mirrors purchases.subscriptions of the
// androidpublisher v3 API. Millisecond timestamps arrive as decimal strings.
// cf. https://developers.google.com/android-publisher/api-ref/rest/v3/purchases.subscriptions
type googleSubscriptionResource struct {
	StartTimeMillis  string `json:"startTimeMillis"`
	ExpiryTimeMillis string `json:"expiryTimeMillis"`
	AutoRenewing     bool   `json:"autoRenewing"`
	CancelReason     *int   `json:"cancelReason"`
	OrderID          string `json:"orderId"`
	PurchaseType     *int   `json:"purchaseType"`
}

// googleProductResource mirrors purchases.products of the androidpublisher v3
// API.
// cf. https://developers.google.com/android-publisher/api-ref/rest/v3/purchases.products
type googleProductResource struct {
	PurchaseTimeMillis string `json:"purchaseTimeMillis"`
	PurchaseState      int    `json:"purchaseState"`
	ConsumptionState   int    `json:"consumptionState"`
	OrderID            string `json:"orderId"`
	PurchaseType       *int   `json:"purchaseType"`
	ProductID          string `json:"productId"`
}

// GetGoogleSubscription fetches the live state of a Play subscription.
// Play has no sandbox host; test purchases go through the production API, so
// the sandbox flag is ignored here.
func (g *Gateway) GetGoogleSubscription(ctx context.Context, token, subscriptionID, packageName string, sandbox bool) (*adapter.GoogleSubscription, error) {
	res, err := g.getGoogleSubscription(ctx, token, subscriptionID, packageName)
	if err != nil {
		return nil, err
	}

	sub := &adapter.GoogleSubscription{
		AutoRenewing: res.AutoRenewing,
		CancelReason: res.CancelReason,
		OrderID:      res.OrderID,
	}
	if res.ExpiryTimeMillis != "" {
		ms, err := strconv.ParseInt(res.ExpiryTimeMillis, 10, 64)
		if err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("could not parse expiryTimeMillis %q: %v", res.ExpiryTimeMillis, err)}
		}
		t := time.UnixMilli(ms).UTC()
		sub.ExpiryTime = &t
	}
	return sub, nil
}

func (g *Gateway) getGoogleSubscription(ctx context.Context, token, subscriptionID, packageName string) (*googleSubscriptionResource, error) {
	url := fmt.Sprintf("%s/applications/%s/purchases/subscriptions/%s/tokens/%s",
		g.publisherURL, packageName, subscriptionID, token)

	var res googleSubscriptionResource
	if err := g.call(ctx, http.MethodGet, url, nil, model.PlatformGoogle, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (g *Gateway) getGoogleProduct(ctx context.Context, token, productID, packageName string) (*googleProductResource, error) {
	url := fmt.Sprintf("%s/applications/%s/purchases/products/%s/tokens/%s",
		g.publisherURL, packageName, productID, token)

	var res googleProductResource
	if err := g.call(ctx, http.MethodGet, url, nil, model.PlatformGoogle, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
