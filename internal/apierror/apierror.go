// Package apierror provides the error envelope returned by the HTTP API.
// Storage and internal errors never reach clients through it; handlers only
// copy domain error codes and messages.
package apierror

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
// Code, MedicineID and Line are set for domain errors.
type APIError struct {
	Detail     string  `json:"detail"`
	Code       string  `json:"code,omitempty"`
	MedicineID *string `json:"medicine_id,omitempty"`
	Line       *int    `json:"line,omitempty"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// WithCode builds an envelope for a classified failure.
func WithCode(code, msg string) *APIError {
	return &APIError{Detail: msg, Code: code}
}

// ValidationError wraps field errors from request binding.
type ValidationError struct {
	Detail string            `json:"detail"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "validation failed", Code: "INVALID_ARGUMENT", Fields: fields}
}
