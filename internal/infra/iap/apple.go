package iap

import (
	"context"
	"net/http"

	"podcast-subscription-backend/internal/domain/model"
	"podcast-subscription-backend/internal/domain/ports/adapter"
)

// AppleReceiptStatus is the status field of a verifyReceipt response.
// cf. https://developer.apple.com/documentation/appstorereceipts/status
type AppleReceiptStatus int

const (
	AppleReceiptValid AppleReceiptStatus = 0

	// The request was not made using HTTP POST.
	AppleReceiptErrBadMethod AppleReceiptStatus = 21000
	// No longer sent by the App Store.
	AppleReceiptErrDeprecated AppleReceiptStatus = 21001
	// The receipt-data was malformed or the service hit a temporary issue.
	AppleReceiptErrMalformed AppleReceiptStatus = 21002
	// The receipt could not be authenticated.
	AppleReceiptErrUnauthenticated AppleReceiptStatus = 21003
	// The shared secret does not match the one on file.
	AppleReceiptErrSharedSecret AppleReceiptStatus = 21004
	// The receipt server was temporarily unavailable.
	AppleReceiptErrUnavailable AppleReceiptStatus = 21005
	// Valid but expired; only for iOS 6-style transaction receipts.
	AppleReceiptErrExpired AppleReceiptStatus = 21006
	// Sandbox receipt sent to the production environment.
	AppleReceiptErrSandboxToProd AppleReceiptStatus = 21007
	// Production receipt sent to the sandbox environment.
	AppleReceiptErrProdToSandbox AppleReceiptStatus = 21008
	// Internal data access error.
	AppleReceiptErrInternal AppleReceiptStatus = 21009
	// The account cannot be found or has been deleted.
	AppleReceiptErrAccountGone AppleReceiptStatus = 21010
)

// AppleAPIErrorCode is the errorCode of an App Store Server API error body.
// cf. https://developer.apple.com/documentation/appstoreserverapi
type AppleAPIErrorCode int

const (
	AppleAPIErrorUnknown AppleAPIErrorCode = 0

	AppleAPIErrorGeneralBadRequest                  AppleAPIErrorCode = 4000000
	AppleAPIErrorInvalidAppIdentifier               AppleAPIErrorCode = 4000002
	AppleAPIErrorInvalidRequestRevision             AppleAPIErrorCode = 4000005
	AppleAPIErrorInvalidOriginalTransactionID       AppleAPIErrorCode = 4000008
	AppleAPIErrorInvalidExtendByDays                AppleAPIErrorCode = 4000009
	AppleAPIErrorInvalidExtendReasonCode            AppleAPIErrorCode = 4000010
	AppleAPIErrorInvalidRequestIdentifier           AppleAPIErrorCode = 4000011
	AppleAPIErrorSubscriptionExtensionIneligible    AppleAPIErrorCode = 4030004
	AppleAPIErrorSubscriptionMaxExtension           AppleAPIErrorCode = 4030005
	AppleAPIErrorAccountNotFound                    AppleAPIErrorCode = 4040001
	AppleAPIErrorAccountNotFoundRetryable           AppleAPIErrorCode = 4040002
	AppleAPIErrorAppNotFound                        AppleAPIErrorCode = 4040003
	AppleAPIErrorAppNotFoundRetryable               AppleAPIErrorCode = 4040004
	AppleAPIErrorOriginalTransactionIDNotFound      AppleAPIErrorCode = 4040005
	AppleAPIErrorOriginalTransactionIDNotFoundRetry AppleAPIErrorCode = 4040006
	AppleAPIErrorGeneralInternal                    AppleAPIErrorCode = 5000000
	AppleAPIErrorGeneralInternalRetryable           AppleAPIErrorCode = 5000001
)

// AppleInAppReceipt is the flat in-app receipt shape of a verifyReceipt
// response. Date fields come back as strings; millisecond variants are the
// ones meant for processing.
// cf. https://developer.apple.com/documentation/appstorereceipts/responsebody/receipt/in_app
type AppleInAppReceipt struct {
	CancellationDate       string `json:"cancellation_date,omitempty"`
	CancellationDateMS     string `json:"cancellation_date_ms,omitempty"`
	CancellationDatePST    string `json:"cancellation_date_pst,omitempty"`
	CancellationReason     string `json:"cancellation_reason,omitempty"`
	ExpiresDate            string `json:"expires_date,omitempty"`
	ExpiresDateMS          string `json:"expires_date_ms,omitempty"`
	ExpiresDatePST         string `json:"expires_date_pst,omitempty"`
	IsInIntroOfferPeriod    string `json:"is_in_intro_offer_period,omitempty"`
	IsTrialPeriod           string `json:"is_trial_period,omitempty"`
	OriginalPurchaseDate    string `json:"original_purchase_date"`
	OriginalPurchaseDateMS  string `json:"original_purchase_date_ms"`
	OriginalPurchaseDatePST string `json:"original_purchase_date_pst,omitempty"`
	OriginalTransactionID   string `json:"original_transaction_id"`
	ProductID               string `json:"product_id"`
	PromotionalOfferID      string `json:"promotional_offer_id,omitempty"`
	PurchaseDate            string `json:"purchase_date,omitempty"`
	PurchaseDateMS          string `json:"purchase_date_ms,omitempty"`
	PurchaseDatePST         string `json:"purchase_date_pst,omitempty"`
	Quantity                string `json:"quantity"`
	TransactionID           string `json:"transaction_id"`
	WebOrderLineItemID      string `json:"web_order_line_item_id,omitempty"`
}

type appleVerifyRequest struct {
	ReceiptData            string `json:"receipt-data"`
	Password               string `json:"password"`
	ExcludeOldTransactions bool   `json:"exclude-old-transactions,omitempty"`
}

type appleVerifyResponse struct {
	IsRetryable   bool               `json:"is-retryable"`
	LatestReceipt string             `json:"latest_receipt"`
	Receipt       *AppleInAppReceipt `json:"receipt"`
	Status        AppleReceiptStatus `json:"status"`
}

// VerifyAppleReceipt submits the raw receipt blob and the shared secret to
// the receipt-verification endpoint.
// cf. https://developer.apple.com/documentation/appstorereceipts/verifyreceipt
func (g *Gateway) VerifyAppleReceipt(ctx context.Context, receipt string, sandbox bool) (*AppleInAppReceipt, error) {
	base := g.itunesLiveURL
	if sandbox {
		base = g.itunesSandboxURL
	}

	req := appleVerifyRequest{
		ReceiptData: receipt,
		Password:    g.creds.AppleSharedSecret,
	}

	var res appleVerifyResponse
	if err := g.call(ctx, http.MethodPost, base+"/verifyReceipt", req, model.PlatformApple, &res); err != nil {
		return nil, err
	}

	if res.Status != AppleReceiptValid {
		return nil, &InvalidReceiptError{Status: res.Status}
	}
	if res.Receipt == nil {
		return nil, &ParseError{Reason: "no receipt received"}
	}
	return res.Receipt, nil
}

// GetAppleSubscriptionStatus reads the live status of a subscription from the
// App Store Server API, walking all subscription groups for the transaction
// that matches the requested original transaction id.
// cf. https://developer.apple.com/documentation/appstoreserverapi/get_all_subscription_statuses
func (g *Gateway) GetAppleSubscriptionStatus(ctx context.Context, originalTransactionID string, sandbox bool) (adapter.AppleSubscriptionStatus, error) {
	base := g.storeKitLiveURL
	if sandbox {
		base = g.storeKitPlayURL
	}

	var res struct {
		Data []struct {
			LastTransactions []struct {
				OriginalTransactionID string                          `json:"originalTransactionId"`
				Status                adapter.AppleSubscriptionStatus `json:"status"`
			} `json:"lastTransactions"`
		} `json:"data"`
	}
	if err := g.call(ctx, http.MethodGet, base+"/subscriptions/"+originalTransactionID, nil, model.PlatformApple, &res); err != nil {
		return 0, err
	}

	for _, group := range res.Data {
		for _, tx := range group.LastTransactions {
			if tx.OriginalTransactionID == originalTransactionID {
				return tx.Status, nil
			}
		}
	}
	return 0, ErrSubscriptionNotFound
}
