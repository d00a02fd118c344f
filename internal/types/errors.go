package types

import "errors"

// Error taxonomy shared by the IO manager, the alarm engine and the config
// provider. Callers match with errors.Is; wrapping adds context.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrTimeout         = errors.New("timeout")
	ErrHardwareFault   = errors.New("hardware fault")
	ErrNotInitialized  = errors.New("not initialized")
	ErrInvalidState    = errors.New("invalid state")
)

// IsTransient reports whether err is safe to retry as is.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// ErrorCode maps an error onto the stable code used in API payloads.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrHardwareFault):
		return "HARDWARE_FAULT"
	case errors.Is(err, ErrNotInitialized):
		return "NOT_INITIALIZED"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE"
	default:
		return "INTERNAL"
	}
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
