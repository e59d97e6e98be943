package model

import "fmt"

// Platform identifies the store a receipt came from. The wire values match
// the client contract.
type Platform string

const (
	PlatformApple  Platform = "Apple"
	PlatformGoogle Platform = "Google"
)

func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformApple, PlatformGoogle:
		return Platform(s), nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// ProductType is the caller-declared kind of product being verified.
type ProductType string

const (
	ProductTypeSubscription  ProductType = "Subscription"
	ProductTypeConsumable    ProductType = "Consumable"
	ProductTypeNonConsumable ProductType = "NonConsumable"
)

// Purchase is the transient, normalized result of a verification call: one of
// six shapes (vendor x product type). It carries vendor identifiers only and
// is consumed immediately to build a Payment.
type Purchase interface {
	purchase()
}

type AppleSubscriptionPurchase struct {
	ProductID             string
	TransactionID         string
	OriginalTransactionID string
}

type AppleConsumablePurchase struct {
	ProductID     string
	TransactionID string
}

type AppleNonConsumablePurchase struct {
	ProductID     string
	TransactionID string
}

type GoogleSubscriptionPurchase struct {
	ProductID   string
	Token       string
	PackageName string
	OrderID     string
}

type GoogleConsumablePurchase struct {
	ProductID   string
	Token       string
	PackageName string
	OrderID     string
}

type GoogleNonConsumablePurchase struct {
	ProductID   string
	Token       string
	PackageName string
	OrderID     string
}

func (AppleSubscriptionPurchase) purchase()   {}
func (AppleConsumablePurchase) purchase()     {}
func (AppleNonConsumablePurchase) purchase()  {}
func (GoogleSubscriptionPurchase) purchase()  {}
func (GoogleConsumablePurchase) purchase()    {}
func (GoogleNonConsumablePurchase) purchase() {}
