package controls

import (
	"context"
	"errors"
	"fmt"

	"github.com/viego-wallet/viego-backend/internal/repository"
	"github.com/viego-wallet/viego-backend/internal/visa"
)

// Kind tells a caller what to do about a failed operation: retry later,
// fix the request, or give up.
type Kind string

const (
	KindUnreachable Kind = "unreachable"
	KindRejected    Kind = "rejected"
	KindNotFound    Kind = "not_found"
	// KindVendorNotFound is a vendor resource that no longer exists, such
	// as a control document deleted outside this service.
	KindVendorNotFound Kind = "vendor_not_found"
	KindConfig      Kind = "config"
	KindDecode      Kind = "decode"
	KindInternal    Kind = "internal"
)

// Error is an orchestration failure with its classification.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrUnsupportedControl is returned when a rule names a control type the
// card does not offer.
var ErrUnsupportedControl = errors.New("control type not available for this card")

// Classify maps any error returned by this package, the vendor gateway or
// the local store to a Kind.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var opErr *Error
	if errors.As(err, &opErr) && opErr.Kind != "" {
		return opErr.Kind
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnsupportedControl),
		errors.Is(err, repository.ErrDuplicate),
		errors.Is(err, repository.ErrVendorIDImmutable):
		return KindRejected
	case visa.IsConfigError(err):
		return KindConfig
	}
	var decErr *visa.DecodeError
	if errors.As(err, &decErr) {
		return KindDecode
	}
	switch {
	case visa.IsTransient(err):
		return KindUnreachable
	case visa.IsNotFound(err):
		return KindVendorNotFound
	case visa.IsRejected(err):
		return KindRejected
	case errors.Is(err, context.Canceled):
		return KindUnreachable
	}
	return KindInternal
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: Classify(err), Op: op, Err: err}
}
