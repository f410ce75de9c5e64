package domain

import (
	"errors"
	"fmt"
)

// ErrorKind buckets failure codes by who can act on them.
type ErrorKind string

const (
	// ErrorKindValidation marks caller-correctable input faults. Never retried.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindProcessing marks downstream or business faults during a valid
	// operation. May warrant compensating action or retry.
	ErrorKindProcessing ErrorKind = "processing"
	// ErrorKindInternal marks unexpected failures requiring investigation.
	ErrorKindInternal ErrorKind = "internal"
)

// ErrorCode is a stable identifier usable for client branching and metrics.
type ErrorCode string

// Validation codes.
const (
	CodeCannotOffer               ErrorCode = "cannot_offer"
	CodeCantSubmit                ErrorCode = "cant_submit"
	CodeCannotAcceptOffer         ErrorCode = "cannot_accept_offer"
	CodeCannotRejectOffer         ErrorCode = "cannot_reject_offer"
	CodeCannotRejectOwnOffer      ErrorCode = "cannot_reject_own_offer"
	CodeCannotCounter             ErrorCode = "cannot_counter"
	CodeFailedOrderCodeGeneration ErrorCode = "failed_order_code_generation"
	CodeInvalidAmountCents        ErrorCode = "invalid_amount_cents"
	CodeInvalidCommissionRate     ErrorCode = "invalid_commission_rate"
	CodeInvalidOffer              ErrorCode = "invalid_offer"
	CodeInvalidOrder              ErrorCode = "invalid_order"
	CodeInvalidState              ErrorCode = "invalid_state"
	CodeMissingCurrency           ErrorCode = "missing_currency"
	CodeMissingEditionSetID       ErrorCode = "missing_edition_set_id"
	CodeMissingParams             ErrorCode = "missing_params"
	CodeMissingPrice              ErrorCode = "missing_price"
	CodeMissingRequiredParam      ErrorCode = "missing_required_param"
	CodeNotAcquireable            ErrorCode = "not_acquireable"
	CodeNotFound                  ErrorCode = "not_found"
	CodeNotLastOffer              ErrorCode = "not_last_offer"
	CodeNotOfferable              ErrorCode = "not_offerable"
	CodeOfferNotFromBuyer         ErrorCode = "offer_not_from_buyer"
	CodeOrderNotSubmitted         ErrorCode = "order_not_submitted"
	CodeUnknownArtwork            ErrorCode = "unknown_artwork"
	CodeUnknownEditionSet         ErrorCode = "unknown_edition_set"
	CodeUnknownParticipantType    ErrorCode = "unknown_participant_type"
	CodeUnpublishedArtwork        ErrorCode = "unpublished_artwork"
	CodeWrongFulfillmentType      ErrorCode = "wrong_fulfillment_type"
)

// Processing codes.
const (
	CodeCaptureFailed             ErrorCode = "capture_failed"
	CodeChargeAuthorizationFailed ErrorCode = "charge_authorization_failed"
	CodeInsufficientInventory     ErrorCode = "insufficient_inventory"
	CodeReceivedPartialRefund     ErrorCode = "received_partial_refund"
	CodeRefundFailed              ErrorCode = "refund_failed"
	CodeTaxCalculatorFailure      ErrorCode = "tax_calculator_failure"
	CodeUndeductInventoryFailure  ErrorCode = "undeduct_inventory_failure"
)

// Internal codes.
const (
	// CodeGeneric is the catch-all for unclassified internal failures.
	CodeGeneric ErrorCode = "generic"
	// CodeCatalog marks failures originating in the artwork catalog collaborator.
	CodeCatalog ErrorCode = "catalog"
)

var codeKinds = map[ErrorCode]ErrorKind{
	CodeCannotOffer:               ErrorKindValidation,
	CodeCantSubmit:                ErrorKindValidation,
	CodeCannotAcceptOffer:         ErrorKindValidation,
	CodeCannotRejectOffer:         ErrorKindValidation,
	CodeCannotRejectOwnOffer:      ErrorKindValidation,
	CodeCannotCounter:             ErrorKindValidation,
	CodeFailedOrderCodeGeneration: ErrorKindValidation,
	CodeInvalidAmountCents:        ErrorKindValidation,
	CodeInvalidCommissionRate:     ErrorKindValidation,
	CodeInvalidOffer:              ErrorKindValidation,
	CodeInvalidOrder:              ErrorKindValidation,
	CodeInvalidState:              ErrorKindValidation,
	CodeMissingCurrency:           ErrorKindValidation,
	CodeMissingEditionSetID:       ErrorKindValidation,
	CodeMissingParams:             ErrorKindValidation,
	CodeMissingPrice:              ErrorKindValidation,
	CodeMissingRequiredParam:      ErrorKindValidation,
	CodeNotAcquireable:            ErrorKindValidation,
	CodeNotFound:                  ErrorKindValidation,
	CodeNotLastOffer:              ErrorKindValidation,
	CodeNotOfferable:              ErrorKindValidation,
	CodeOfferNotFromBuyer:         ErrorKindValidation,
	CodeOrderNotSubmitted:         ErrorKindValidation,
	CodeUnknownArtwork:            ErrorKindValidation,
	CodeUnknownEditionSet:         ErrorKindValidation,
	CodeUnknownParticipantType:    ErrorKindValidation,
	CodeUnpublishedArtwork:        ErrorKindValidation,
	CodeWrongFulfillmentType:      ErrorKindValidation,

	CodeCaptureFailed:             ErrorKindProcessing,
	CodeChargeAuthorizationFailed: ErrorKindProcessing,
	CodeInsufficientInventory:     ErrorKindProcessing,
	CodeReceivedPartialRefund:     ErrorKindProcessing,
	CodeRefundFailed:              ErrorKindProcessing,
	CodeTaxCalculatorFailure:      ErrorKindProcessing,
	CodeUndeductInventoryFailure:  ErrorKindProcessing,

	CodeGeneric: ErrorKindInternal,
	CodeCatalog: ErrorKindInternal,
}

// KindOf returns the kind a code belongs to, defaulting unknown codes to internal.
func KindOf(code ErrorCode) ErrorKind {
	if kind, ok := codeKinds[code]; ok {
		return kind
	}
	return ErrorKindInternal
}

// Error is the structured failure every public exchange operation reports.
// It pairs a stable code with its kind so transports and monitoring can branch
// without string matching.
type Error struct {
	Kind    ErrorKind
	Code    ErrorCode
	Message string
	Err     error
	// Codes carries the full accumulated set when an operation reports
	// several validation faults at once. Code always equals Codes[0] then.
	Codes []ErrorCode
}

// NewError builds an Error, deriving the kind from the code table.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Kind: KindOf(code), Code: code, Message: message}
}

// NewValidationErrors folds an accumulated code set into a single Error.
// The first code becomes the primary one.
func NewValidationErrors(codes ...ErrorCode) *Error {
	if len(codes) == 0 {
		return nil
	}
	return &Error{
		Kind:  ErrorKindValidation,
		Code:  codes[0],
		Codes: append([]ErrorCode(nil), codes...),
	}
}

// AllCodes returns every code the error carries, primary first.
func (e *Error) AllCodes() []ErrorCode {
	if e == nil {
		return nil
	}
	if len(e.Codes) > 0 {
		return append([]ErrorCode(nil), e.Codes...)
	}
	return []ErrorCode{e.Code}
}

// WrapError builds an Error around an underlying cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Kind: KindOf(code), Code: code, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, msg)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors carrying the same code, so callers can compare against
// NewError(code, "") style sentinels.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e != nil && other != nil && e.Code == other.Code
}

// SafeMessage returns the caller-facing message without internal detail.
func (e *Error) SafeMessage() string {
	if e == nil {
		return ""
	}
	if e.Kind == ErrorKindInternal {
		return string(e.Code)
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// CodeOf extracts the taxonomy code from an error chain.
func CodeOf(err error) (ErrorCode, bool) {
	var exchangeErr *Error
	if errors.As(err, &exchangeErr) && exchangeErr != nil {
		return exchangeErr.Code, true
	}
	return "", false
}

// IsCode reports whether the error chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}
