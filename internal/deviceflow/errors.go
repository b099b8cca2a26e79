package deviceflow

import (
	"errors"
	"fmt"
)

// Error codes of RFC 8628 section 3.5 and RFC 6749 section 5.2.
const (
	ErrorCodeAuthorizationPending = "authorization_pending"
	ErrorCodeSlowDown             = "slow_down"
	ErrorCodeAccessDenied         = "access_denied"
	ErrorCodeExpiredToken         = "expired_token"
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeServerError          = "server_error"
)

// ErrCodeNotFound is returned when a user code does not match a pending request.
var ErrCodeNotFound = errors.New("device code not found")

// DeviceFlowError is an OAuth error that is sent to the client as
// {"error": Code, "error_description": Description}.
type DeviceFlowError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *DeviceFlowError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewDeviceFlowError creates a DeviceFlowError.
func NewDeviceFlowError(code, description string) *DeviceFlowError {
	return &DeviceFlowError{Code: code, Description: description}
}

// IsCode reports whether err is a DeviceFlowError with the given code.
func IsCode(err error, code string) bool {
	var dfe *DeviceFlowError
	return errors.As(err, &dfe) && dfe.Code == code
}
