package scraper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorCode classifies an operational scrape failure. The numeric values are
// stable and match the exit codes of earlier releases.
type ErrorCode int

const (
	CodeAuthenticationFailed    ErrorCode = 1
	CodeSSLError                ErrorCode = 2
	CodeCertificateVerifyFailed ErrorCode = 3
	CodeConnectionError         ErrorCode = 4
	CodeTimeout                 ErrorCode = 5
	CodeMissingSchema           ErrorCode = 6
	CodeInvalidURL              ErrorCode = 7
	CodeJSONDecode              ErrorCode = 8
	CodePoolTimeout             ErrorCode = 9
)

var codeNames = map[ErrorCode]string{
	CodeAuthenticationFailed:    "AuthenticationFailed",
	CodeSSLError:                "SSLError",
	CodeCertificateVerifyFailed: "CertificateVerifyFailed",
	CodeConnectionError:         "ConnectionError",
	CodeTimeout:                 "TimeoutError",
	CodeMissingSchema:           "MissingSchemaError",
	CodeInvalidURL:              "InvalidURLError",
	CodeJSONDecode:              "JSONDecodeFailure",
	CodePoolTimeout:             "PoolTimeout",
}

// String returns the error kind name.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Sentinels for errors.Is. Only the code is compared.
var (
	ErrAuthenticationFailed    = &Error{Code: CodeAuthenticationFailed}
	ErrSSL                     = &Error{Code: CodeSSLError}
	ErrCertificateVerifyFailed = &Error{Code: CodeCertificateVerifyFailed}
	ErrConnection              = &Error{Code: CodeConnectionError}
	ErrTimeout                 = &Error{Code: CodeTimeout}
	ErrMissingSchema           = &Error{Code: CodeMissingSchema}
	ErrInvalidURL              = &Error{Code: CodeInvalidURL}
	ErrJSONDecode              = &Error{Code: CodeJSONDecode}
	ErrPoolTimeout             = &Error{Code: CodePoolTimeout}
)

// Error is a classified, expected-at-runtime failure tied to one device.
// Anything that is not an *Error is treated as a defect by callers.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates an Error that keeps cause for errors.Is and errors.As.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// AsError returns the classified error inside err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// classifyTransport maps an error returned by the HTTP client to the taxonomy.
// Every transport failure is operational, so this never returns nil for a
// non-nil err.
func classifyTransport(err error, timeoutMessage string) *Error {
	if e, ok := AsError(err); ok {
		return e
	}

	switch {
	case isTimeout(err):
		return WrapError(CodeTimeout, timeoutMessage, err)
	case isCertificateError(err):
		return WrapError(CodeCertificateVerifyFailed, "Invalid certificate, connection to host failed", err)
	case isTLSError(err):
		return WrapError(CodeSSLError, "Connection refused due to an SSL Error", err)
	default:
		return WrapError(CodeConnectionError, "Connection refused, host might be out of reach.", err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isCertificateError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}

func isTLSError(err error) bool {
	var recordErr tls.RecordHeaderError
	var alertErr tls.AlertError
	if errors.As(err, &recordErr) || errors.As(err, &alertErr) {
		return true
	}
	return strings.Contains(err.Error(), "tls: ")
}
