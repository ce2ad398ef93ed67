// pkg/errors/api.go
package errors

import "net/http"

// API error codes
const (
	// APIErrBadRequest indicates a bad request
	APIErrBadRequest = "API_BAD_REQUEST"
	// APIErrUnauthorized indicates an unauthorized request
	APIErrUnauthorized = "API_UNAUTHORIZED"
	// APIErrNotFound indicates a resource was not found
	APIErrNotFound = "API_NOT_FOUND"
	// APIErrUnsupportedMedia indicates a request body with the wrong content type
	APIErrUnsupportedMedia = "API_UNSUPPORTED_MEDIA_TYPE"
	// APIErrInternalServer indicates an internal server error
	APIErrInternalServer = "API_INTERNAL_SERVER"
	// APIErrRateLimitExceeded indicates a rate limit was exceeded
	APIErrRateLimitExceeded = "API_RATE_LIMIT_EXCEEDED"
	// APIErrPayloadTooLarge indicates a request body over the configured limit
	APIErrPayloadTooLarge = "API_PAYLOAD_TOO_LARGE"
)

// API domain name
const APIDomain = "api"

// API operations
const (
	OpParseRequestBody = "ParseRequestBody"
	OpHandleRequest    = "HandleRequest"
	OpGetReceipt       = "GetReceipt"
)

// NewAPIError creates a new API error
func NewAPIError(code string, message string, err error) error {
	kind := KindInternal
	switch code {
	case APIErrBadRequest, APIErrUnsupportedMedia, APIErrPayloadTooLarge:
		kind = KindValidation
	case APIErrNotFound:
		kind = KindNotFound
	}
	return &Error{
		Kind:     kind,
		Domain:   APIDomain,
		Code:     code,
		Message:  message,
		Original: err,
	}
}

// HTTPStatusForKind returns the HTTP status used to report a failure of the given kind.
func HTTPStatusForKind(kind Kind) int {
	switch kind {
	case KindValidation, KindDecode, KindSigning:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicate:
		return http.StatusConflict
	case KindSubmission:
		return http.StatusBadGateway
	case KindStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatusFromError returns the HTTP status code for any error
func HTTPStatusFromError(err error) int {
	var domainErr *Error
	if As(err, &domainErr) && domainErr.Domain == APIDomain {
		switch domainErr.Code {
		case APIErrUnauthorized:
			return http.StatusUnauthorized
		case APIErrUnsupportedMedia:
			return http.StatusUnsupportedMediaType
		case APIErrRateLimitExceeded:
			return http.StatusTooManyRequests
		case APIErrPayloadTooLarge:
			return http.StatusRequestEntityTooLarge
		}
	}
	return HTTPStatusForKind(KindOf(err))
}
