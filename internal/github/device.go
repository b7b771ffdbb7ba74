package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DeviceCode is GitHub's answer to a device authorization request.
type DeviceCode struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// DeviceToken is a poll result. Error holds the OAuth error code while the
// authorization is pending or after it failed.
type DeviceToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
	Interval    int    `json:"interval"`
}

// OAuth error codes returned while polling.
const (
	DeviceAuthorizationPending = "authorization_pending"
	DeviceSlowDown             = "slow_down"
	DeviceExpired              = "expired_token"
	DeviceAccessDenied         = "access_denied"
)

const deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

// RequestDeviceCode starts the device flow for clientID with the repo scope.
func (c *Client) RequestDeviceCode(ctx context.Context, clientID string) (DeviceCode, error) {
	var dc DeviceCode
	form := url.Values{"client_id": {clientID}, "scope": {"repo"}}
	if err := c.postForm(ctx, c.webURL+"/login/device/code", form, &dc); err != nil {
		return dc, err
	}
	if dc.DeviceCode == "" || dc.UserCode == "" {
		return dc, fmt.Errorf("device code response missing fields")
	}
	if dc.Interval <= 0 {
		dc.Interval = 5
	}
	return dc, nil
}

// PollDeviceToken asks once whether the user has authorized the device.
func (c *Client) PollDeviceToken(ctx context.Context, clientID, deviceCode string) (DeviceToken, error) {
	var tok DeviceToken
	form := url.Values{
		"client_id":   {clientID},
		"device_code": {deviceCode},
		"grant_type":  {deviceGrantType},
	}
	err := c.postForm(ctx, c.webURL+"/login/oauth/access_token", form, &tok)
	return tok, err
}

func (c *Client) postForm(ctx context.Context, u string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp, u)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrNetworkFailure, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", u, err)
	}
	return nil
}

// Expiry converts ExpiresIn to a deadline relative to now.
func (dc DeviceCode) Expiry(now time.Time) time.Time {
	if dc.ExpiresIn <= 0 {
		return now.Add(15 * time.Minute)
	}
	return now.Add(time.Duration(dc.ExpiresIn) * time.Second)
}
