package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// maxReauth is the number of re-logins allowed per page load.
const maxReauth = 1

var unauthorizedMarker = []byte("Unauthorized")

// loadPage performs an authenticated GET. When the device reports an expired
// session, an unauthorized request or a dropped connection, it logs in again
// and repeats the request once. Any other HTTP error status fails the load.
func (c *Client) loadPage(ctx context.Context, url string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		body, err := c.get(ctx, url)
		if err == nil {
			c.logger.Debug("Loaded page", zap.String("url", url))
			return body, nil
		}

		e, _ := AsError(err)
		if !needsReauth(e) {
			return nil, err
		}
		if attempt >= maxReauth {
			if e.Code == CodeConnectionError {
				return nil, err
			}
			return nil, NewError(CodeAuthenticationFailed, "Authentication failed")
		}

		if err := c.reauthenticate(ctx); err != nil {
			return nil, err
		}
	}
}

// errSessionExpired and errUnauthorized are internal signals; they never
// leave loadPage.
var (
	errSessionExpired = NewError(CodeAuthenticationFailed, "session expired")
	errUnauthorized   = NewError(CodeAuthenticationFailed, "unauthorized")
)

func needsReauth(e *Error) bool {
	if e == nil {
		return false
	}
	if e == errSessionExpired || e == errUnauthorized {
		return true
	}
	return e.Code == CodeConnectionError && !errors.Is(e.Cause, errUnexpectedStatus)
}

// get sends one GET with the current credentials and classifies the outcome.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.device.RequestTimeout.Duration)
	defer cancel()

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Connection", "keep-alive")
	if auth := c.session.authorization(); auth != "" {
		req.SetHeader("Authorization", auth)
	}

	resp, err := req.Get(url)
	if err != nil {
		e := classifyTransport(err, fmt.Sprintf("Request Timeout > %s", c.device.RequestTimeout.Duration))
		if e.Code == CodeConnectionError {
			c.logger.Debug("Connection error, try to login again",
				zap.String("url", url), zap.Error(err))
		}
		return nil, e
	}

	body := resp.Body()
	if hasErrorCode(body) {
		c.logger.Debug("Session expired, reconnect", zap.String("url", url))
		return nil, errSessionExpired
	}
	if bytes.Contains(body, unauthorizedMarker) {
		c.logger.Debug("Unauthorized, try to login", zap.String("url", url))
		return nil, errUnauthorized
	}
	if resp.IsError() {
		return nil, statusError(resp.StatusCode())
	}
	return body, nil
}

// errUnexpectedStatus marks a ConnectionError raised for an HTTP error status
// rather than a transport failure. Such errors do not trigger a re-login.
var errUnexpectedStatus = errors.New("unexpected HTTP status")

func statusError(code int) *Error {
	return WrapError(CodeConnectionError,
		fmt.Sprintf("Host answered with HTTP status %d", code),
		fmt.Errorf("%w %d", errUnexpectedStatus, code))
}

// reauthenticate logs in and stores the new token pair.
func (c *Client) reauthenticate(ctx context.Context) error {
	tokenType, accessToken, err := c.login(ctx)
	if err != nil {
		if c.maskLoginTimeout && isCode(err, CodeTimeout) {
			return WrapError(CodeAuthenticationFailed, "Authentication failed", err)
		}
		return err
	}
	c.session.set(tokenType, accessToken)
	return nil
}

// hasErrorCode reports whether body is a JSON object carrying an errorCode
// field, which the device returns for sessions it has dropped.
func hasErrorCode(body []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	_, ok := probe["errorCode"]
	return ok
}

func isCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}
