package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire discriminators for the payment union. They are part of the stored
// document shape and must not change.
const (
	ApplePaymentType  = "AppleInAppSubscriptionPurchase"
	GooglePaymentType = "GoogleInAppSubscriptionPurchase"
)

// Payment is a closed union with exactly one case per vendor. The two cases
// share some field names by coincidence; they are deliberately kept as
// separate types so a payment can never carry both an Apple transaction id
// and a Google token. Consumers match exhaustively with a type switch over
// *ApplePayment and *GooglePayment.
type Payment interface {
	payment()
}

// ApplePayment is the Apple case of the union. OriginalTransactionID is the
// vendor's durable subscription identity and the deduplication key; it is
// immutable once the payment is created.
type ApplePayment struct {
	From                  time.Time  `json:"from"`
	To                    *time.Time `json:"to,omitempty"`
	OriginalTransactionID string     `json:"originalTransactionId"`
	OriginalPurchaseDate  time.Time  `json:"originalPurchaseDate"`
	ProductID             string     `json:"productId"`
	Modified              time.Time  `json:"modified"`
}

func (*ApplePayment) payment() {}

func (p *ApplePayment) MarshalJSON() ([]byte, error) {
	type alias ApplePayment
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{Type: ApplePaymentType, alias: (*alias)(p)})
}

// GooglePayment is the Google case of the union. Token is the vendor's opaque
// purchase token and the deduplication key; immutable once created.
type GooglePayment struct {
	From                 time.Time  `json:"from"`
	To                   *time.Time `json:"to,omitempty"`
	Token                string     `json:"token"`
	PackageName          string     `json:"packageName"`
	OriginalPurchaseDate time.Time  `json:"originalPurchaseDate"`
	ProductID            string     `json:"productId"`
	Modified             time.Time  `json:"modified"`
}

func (*GooglePayment) payment() {}

func (p *GooglePayment) MarshalJSON() ([]byte, error) {
	type alias GooglePayment
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{Type: GooglePaymentType, alias: (*alias)(p)})
}

// Payments decodes the tagged union from the stored document.
type Payments []Payment

func (ps *Payments) UnmarshalJSON(b []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return err
	}
	out := make(Payments, 0, len(raws))
	for _, raw := range raws {
		var tag struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &tag); err != nil {
			return err
		}
		switch tag.Type {
		case ApplePaymentType:
			var p ApplePayment
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			out = append(out, &p)
		case GooglePaymentType:
			var p GooglePayment
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			out = append(out, &p)
		default:
			return fmt.Errorf("unknown payment type %q", tag.Type)
		}
	}
	*ps = out
	return nil
}

// Subscription is the stored document. End == nil means the subscription is
// active; once End is set the subscription is terminal and End is never
// cleared. Payments is chronological and the last entry is the current one.
type Subscription struct {
	ID       string     `json:"id"`
	Deleted  bool       `json:"deleted,omitempty"`
	OfficeID string     `json:"officeId"`
	UserID   string     `json:"userId"`
	Start    time.Time  `json:"start"`
	End      *time.Time `json:"end,omitempty"`
	Payments Payments   `json:"payments,omitempty"`
	Created  time.Time  `json:"created"`
	Modified time.Time  `json:"modified"`
}

// EligibleAt reports whether the subscription is not yet known to have ended
// at the given instant.
func (s *Subscription) EligibleAt(now time.Time) bool {
	return s.End == nil || s.End.After(now)
}

// LastPayment returns the current payment, if any.
func (s *Subscription) LastPayment() (Payment, bool) {
	if len(s.Payments) == 0 {
		return nil, false
	}
	return s.Payments[len(s.Payments)-1], true
}

// Terminate sets End and the current payment's To to the same instant, and
// stamps Modified on both. Termination is monotonic: a subscription that
// already ended is left untouched.
func (s *Subscription) Terminate(end, now time.Time) bool {
	if s.End != nil {
		return false
	}
	s.End = &end
	s.Modified = now
	if len(s.Payments) == 0 {
		return true
	}
	switch p := s.Payments[len(s.Payments)-1].(type) {
	case *ApplePayment:
		p.To = &end
		p.Modified = now
	case *GooglePayment:
		p.To = &end
		p.Modified = now
	}
	return true
}
