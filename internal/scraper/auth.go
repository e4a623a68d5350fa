package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Fixed paths of the mbdetnrs REST API, relative to the device address.
const (
	loginPath             = "/rest/mbdetnrs/1.0/oauth2/token"
	powerDistributionPath = "/rest/mbdetnrs/1.0/powerDistributions/1"
	logMeasuresPath       = "/logs/logMeasures.csv"

	// There may be several input and output phases; the first one is used.
	inputMemberID  = 1
	outputMemberID = 1
)

type loginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	GrantType string `json:"grant_type"`
	Scope     string `json:"scope"`
}

type loginResponse struct {
	TokenType   string `json:"token_type"`
	AccessToken string `json:"access_token"`
}

// login performs the token exchange and returns the new credential pair.
// It does not touch the client's session; the caller stores the result.
func (c *Client) login(ctx context.Context) (tokenType, accessToken string, err error) {
	loginURL, err := c.resolve(loginPath)
	if err != nil {
		return "", "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.device.LoginTimeout.Duration)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(loginRequest{
			Username:  c.device.User,
			Password:  c.device.Password,
			GrantType: "password",
			Scope:     "GUIAccess",
		}).
		Post(loginURL)
	if err != nil {
		return "", "", classifyTransport(err,
			fmt.Sprintf("Login Timeout > %s", c.device.LoginTimeout.Duration))
	}

	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return "", "", NewError(CodeAuthenticationFailed, "Authentication failed")
	}
	if resp.IsError() {
		return "", "", statusError(resp.StatusCode())
	}

	var out loginResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", "", WrapError(CodeJSONDecode, "Login response is not valid JSON", err)
	}
	if out.TokenType == "" || out.AccessToken == "" {
		return "", "", NewError(CodeAuthenticationFailed, "Authentication failed")
	}

	c.logger.Debug("Authentication successful", zap.String("address", c.device.Address))
	return out.TokenType, out.AccessToken, nil
}

// resolve joins a path onto the device address after checking that the
// address is a usable absolute URL.
func (c *Client) resolve(path string) (string, error) {
	if !strings.Contains(c.device.Address, "://") {
		return "", NewError(CodeMissingSchema, "Invalid URL, no schema supplied")
	}
	base := strings.TrimRight(c.device.Address, "/")

	u, err := url.Parse(base + path)
	if err != nil {
		return "", WrapError(CodeInvalidURL, "Invalid URL, no host supplied", err)
	}
	if u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", NewError(CodeInvalidURL, "Invalid URL, no host supplied")
	}
	return u.String(), nil
}
