package hilink

import "fmt"

// Vendor error codes embedded in 200-OK XML bodies.
const (
	codeSessionExpired  = "125002"
	codeSessionInvalid  = "125003"
	codeParameterError  = "100005"
	codeAlreadyLoggedIn = "108002"
)

// TransportError wraps a network-level failure: timeout, connection refused,
// or a non-2xx status with no parseable body.
type TransportError struct {
	err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.err)
}

func (e *TransportError) Unwrap() error {
	return e.err
}

// SessionExpiredError is raised when the device reports 125002/125003; the
// connection's session state has already been cleared by the time the caller
// sees it.
type SessionExpiredError struct {
	Code string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired (code %s)", e.Code)
}

// ParameterError is raised for code 100005: the request was malformed. Not a
// session problem, so no state is touched.
type ParameterError struct {
	Code string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("malformed request parameter (code %s)", e.Code)
}

// VendorError carries any other <error><code> body for caller-side branching.
type VendorError struct {
	Code string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("device error (code %s)", e.Code)
}

type AuthError struct {
	Step string
	err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login failed at step %s: %v", e.Step, e.err)
}

func (e *AuthError) Unwrap() error {
	return e.err
}

// PublicKeyError means the device's RSA public key could not be fetched or
// parsed. Encryption fails outright rather than passing plaintext through.
type PublicKeyError struct {
	err error
}

func (e *PublicKeyError) Error() string {
	return fmt.Sprintf("device public key unavailable: %v", e.err)
}

func (e *PublicKeyError) Unwrap() error {
	return e.err
}

func vendorErrorFor(code string) error {
	switch code {
	case codeSessionExpired, codeSessionInvalid:
		return &SessionExpiredError{Code: code}
	case codeParameterError:
		return &ParameterError{Code: code}
	default:
		return &VendorError{Code: code}
	}
}
