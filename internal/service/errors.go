package service

import (
	"errors"
	"fmt"

	"clinicrx/internal/repository"

	"github.com/google/uuid"
)

// Code classifies a domain failure. The HTTP layer maps codes to status codes.
type Code string

const (
	CodeInsufficientStock     Code = "INSUFFICIENT_STOCK"
	CodeInsufficientPayment   Code = "INSUFFICIENT_PAYMENT"
	CodeDiscountFieldsMissing Code = "DISCOUNT_FIELDS_MISSING"
	CodeMedicineNotFound      Code = "MEDICINE_NOT_FOUND"
	CodeVisitNotFound         Code = "VISIT_NOT_FOUND"
	CodePrescriptionNotFound  Code = "PRESCRIPTION_NOT_FOUND"
	CodeSaleNotFound          Code = "SALE_NOT_FOUND"
	CodeInvalidState          Code = "INVALID_STATE"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeBusy                  Code = "BUSY"
)

// Error is the structured failure returned by every engine operation.
// MedicineID and Line identify the offending cart or prescription line when
// known; Line is zero-based.
type Error struct {
	Code       Code
	Message    string
	MedicineID *uuid.UUID
	Line       *int
	Requested  int
	Available  int

	cause error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on Code so callers can write errors.Is(err, ErrInsufficientStock).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is; they carry no detail.
var (
	ErrInsufficientStock     = &Error{Code: CodeInsufficientStock}
	ErrInsufficientPayment   = &Error{Code: CodeInsufficientPayment}
	ErrDiscountFieldsMissing = &Error{Code: CodeDiscountFieldsMissing}
	ErrMedicineNotFound      = &Error{Code: CodeMedicineNotFound}
	ErrVisitNotFound         = &Error{Code: CodeVisitNotFound}
	ErrPrescriptionNotFound  = &Error{Code: CodePrescriptionNotFound}
	ErrSaleNotFound          = &Error{Code: CodeSaleNotFound}
	ErrInvalidState          = &Error{Code: CodeInvalidState}
	ErrInvalidArgument       = &Error{Code: CodeInvalidArgument}
	ErrBusy                  = &Error{Code: CodeBusy}
)

func newError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func insufficientStock(medicineID uuid.UUID, name string, line *int, requested, available int) *Error {
	id := medicineID
	return &Error{
		Code:       CodeInsufficientStock,
		Message:    fmt.Sprintf("insufficient stock for %s: requested %d, available %d", name, requested, available),
		MedicineID: &id,
		Line:       line,
		Requested:  requested,
		Available:  available,
	}
}

func medicineNotFound(medicineID uuid.UUID, line *int) *Error {
	id := medicineID
	return &Error{
		Code:       CodeMedicineNotFound,
		Message:    fmt.Sprintf("medicine %s not found", medicineID),
		MedicineID: &id,
		Line:       line,
	}
}

// classify turns storage failures that callers can act on into domain errors.
// Domain errors pass through; anything else is returned wrapped with op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, repository.ErrLockTimeout) {
		return &Error{Code: CodeBusy, Message: "inventory is busy, retry the operation", cause: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func intPtr(i int) *int { return &i }
