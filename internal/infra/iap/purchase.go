package iap

import (
	"context"
	"fmt"

	"podcast-subscription-backend/internal/domain/model"
)

// GetPurchase verifies a raw client receipt with the owning vendor and
// normalizes it into one of the six purchase shapes.
//
// For Apple the receipt blob is self-describing, so productID is only a
// cross-check: when declared, it must match what the store reports. For
// Google the receipt is an opaque purchase token and both productID and
// packageName are required to address the Play API.
func (g *Gateway) GetPurchase(ctx context.Context, receipt, productID, packageName string, typ model.ProductType, sandbox bool, platform model.Platform) (model.Purchase, error) {
	switch platform {
	case model.PlatformApple:
		return g.getApplePurchase(ctx, receipt, productID, typ, sandbox)
	case model.PlatformGoogle:
		return g.getGooglePurchase(ctx, receipt, productID, packageName, typ, sandbox)
	default:
		return nil, &ParseError{Reason: fmt.Sprintf("unknown platform %q", platform)}
	}
}

func (g *Gateway) getApplePurchase(ctx context.Context, receipt, productID string, typ model.ProductType, sandbox bool) (model.Purchase, error) {
	rec, err := g.VerifyAppleReceipt(ctx, receipt, sandbox)
	if err != nil {
		return nil, err
	}

	if productID != "" && rec.ProductID != productID {
		return nil, &UnexpectedProductIDError{Declared: productID, Got: rec.ProductID}
	}

	switch typ {
	case model.ProductTypeSubscription:
		return model.AppleSubscriptionPurchase{
			ProductID:             rec.ProductID,
			TransactionID:         rec.TransactionID,
			OriginalTransactionID: rec.OriginalTransactionID,
		}, nil
	case model.ProductTypeConsumable:
		return model.AppleConsumablePurchase{
			ProductID:     rec.ProductID,
			TransactionID: rec.TransactionID,
		}, nil
	case model.ProductTypeNonConsumable:
		return model.AppleNonConsumablePurchase{
			ProductID:     rec.ProductID,
			TransactionID: rec.TransactionID,
		}, nil
	default:
		return nil, &ParseError{Reason: fmt.Sprintf("unknown product type %q", typ)}
	}
}

func (g *Gateway) getGooglePurchase(ctx context.Context, token, productID, packageName string, typ model.ProductType, sandbox bool) (model.Purchase, error) {
	if productID == "" {
		return nil, &ParseError{Reason: "no product id received"}
	}
	if packageName == "" {
		return nil, &ParseError{Reason: "no package name received"}
	}

	switch typ {
	case model.ProductTypeSubscription:
		res, err := g.getGoogleSubscription(ctx, token, productID, packageName)
		if err != nil {
			return nil, err
		}
		return model.GoogleSubscriptionPurchase{
			ProductID:   productID,
			Token:       token,
			PackageName: packageName,
			OrderID:     res.OrderID,
		}, nil
	case model.ProductTypeConsumable, model.ProductTypeNonConsumable:
		res, err := g.getGoogleProduct(ctx, token, productID, packageName)
		if err != nil {
			return nil, err
		}
		if res.ProductID != "" && res.ProductID != productID {
			return nil, &UnexpectedProductIDError{Declared: productID, Got: res.ProductID}
		}
		if typ == model.ProductTypeConsumable {
			return model.GoogleConsumablePurchase{
				ProductID:   productID,
				Token:       token,
				PackageName: packageName,
				OrderID:     res.OrderID,
			}, nil
		}
		return model.GoogleNonConsumablePurchase{
			ProductID:   productID,
			Token:       token,
			PackageName: packageName,
			OrderID:     res.OrderID,
		}, nil
	default:
		return nil, &ParseError{Reason: fmt.Sprintf("unknown product type %q", typ)}
	}
}
