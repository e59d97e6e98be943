package iap

import (
	"errors"
	"fmt"
)

// The gateway's error taxonomy. Vendor API errors, transport errors and
// serialization errors are distinct kinds so callers can react per spec:
// reject the request, report the vendor as down, or log the raw body.

// ErrSubscriptionNotFound is returned when the App Store status response
// contains no transaction matching the requested original transaction id.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// AppleAPIError is a non-200 answer from an Apple endpoint.
type AppleAPIError struct {
	Code    AppleAPIErrorCode
	Message string
}

func (e *AppleAPIError) Error() string {
	return fmt.Sprintf("apple api error %d: %s", e.Code, e.Message)
}

// GoogleAPIError is a non-200 answer from a Google endpoint.
type GoogleAPIError struct {
	Code    int
	Message string
}

func (e *GoogleAPIError) Error() string {
	return fmt.Sprintf("google api error %d: %s", e.Code, e.Message)
}

// NetworkError is a transport-level failure (DNS, TLS, timeout). Retryable
// by the caller; the gateway never retries.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error (%s): %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// SerializationError is a 200 response whose body did not decode into the
// expected shape. Body retains the raw text for diagnostics.
type SerializationError struct {
	Body string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("could not deserialize response (%v) from %s", e.Err, e.Body)
}
func (e *SerializationError) Unwrap() error { return e.Err }

// ParseError covers malformed inputs and key material on our side of the
// wire: bad PEM, missing required arguments, absent response fields.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return e.Reason }

// InvalidReceiptError is a verifyReceipt answer with a non-zero status.
type InvalidReceiptError struct {
	Status AppleReceiptStatus
}

func (e *InvalidReceiptError) Error() string {
	return fmt.Sprintf("receipt is not valid (status %d)", e.Status)
}

// UnexpectedProductIDError is returned when the vendor-reported product id
// disagrees with the one the caller declared.
type UnexpectedProductIDError struct {
	Declared string
	Got      string
}

func (e *UnexpectedProductIDError) Error() string {
	return fmt.Sprintf("unexpected product id (%s != %s)", e.Declared, e.Got)
}
