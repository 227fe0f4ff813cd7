package models

// ErrorCode is a stable, machine readable reason next to the free text error.
type ErrorCode string

const (
	ErrorCodeNone              ErrorCode = ""
	ErrorCodeInvalidRequest    ErrorCode = "invalid_request"
	ErrorCodeNotFound          ErrorCode = "not_found"
	ErrorCodeRecentlyRefreshed ErrorCode = "recently_refreshed"
	ErrorCodeInstrumentFailed  ErrorCode = "instrument_failed"
	ErrorCodeNotConfigured     ErrorCode = "not_configured"
	ErrorCodeTimeout           ErrorCode = "timeout"
	ErrorCodeInternal          ErrorCode = "internal"
)

type ServiceResponse[T any] struct {
	Data  *T        `json:"data"`
	Error string    `json:"error"`
	Code  ErrorCode `json:"code,omitempty"`
}

func GetServiceResponseOk[T any](data *T) ServiceResponse[T] {
	return ServiceResponse[T]{Data: data}
}

// GetServiceResponsePartial carries data alongside an error, used when a request was handled but its outcome is a failure.
func GetServiceResponsePartial[T any](data *T, code ErrorCode, errorMessage string) ServiceResponse[T] {
	return ServiceResponse[T]{
		Data:  data,
		Error: errorMessage,
		Code:  code,
	}
}

func GetServiceResponseError(code ErrorCode, errorMessage string) ServiceResponse[any] {
	return ServiceResponse[any]{
		Error: errorMessage,
		Code:  code,
	}
}
