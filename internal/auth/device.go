package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pyseed/internal/config"
	apperrors "pyseed/internal/errors"
	"pyseed/internal/github"
)

// slowDownStep is added to the poll interval on every slow_down answer.
const slowDownStep = 5 * time.Second

// deviceFlow requests a user code and polls until the user authorizes,
// the code expires, the timeout elapses or ctx is cancelled.
func (r *Resolver) deviceFlow(ctx context.Context, clientID string) (github.DeviceToken, error) {
	if r.Client == nil {
		return github.DeviceToken{}, fmt.Errorf("device flow client not configured")
	}
	log := r.logger()

	dc, err := r.Client.RequestDeviceCode(ctx, clientID)
	if err != nil {
		if errors.Is(err, github.ErrNetworkFailure) {
			return github.DeviceToken{}, apperrors.New(apperrors.CodeRemoteUnreachable,
				"could not start device authorization", err)
		}
		return github.DeviceToken{}, apperrors.New(apperrors.CodeAuthRequired,
			fmt.Sprintf("device authorization rejected client id %q", clientID), err)
	}

	copied := r.copyToClipboard(dc.UserCode)
	if r.Prompt != nil {
		r.Prompt(dc, copied)
	}
	log.Info("waiting for device authorization", "verification_uri", dc.VerificationURI, "interval", dc.Interval)

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = config.DefaultDeviceTimeout
	}
	if left := time.Until(dc.Expiry(time.Now())); left < timeout {
		timeout = left
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wait := r.wait
	if wait == nil {
		wait = time.After
	}
	interval := time.Duration(dc.Interval) * time.Second
	for {
		select {
		case <-pollCtx.Done():
			return github.DeviceToken{}, pollStopped(ctx)
		case <-wait(interval):
		}

		tok, err := r.Client.PollDeviceToken(pollCtx, clientID, dc.DeviceCode)
		if err != nil {
			if pollCtx.Err() != nil {
				return github.DeviceToken{}, pollStopped(ctx)
			}
			return github.DeviceToken{}, apperrors.New(apperrors.CodeRemoteUnreachable,
				"polling device authorization failed", err)
		}

		switch tok.Error {
		case "":
			if tok.AccessToken == "" {
				return github.DeviceToken{}, apperrors.New(apperrors.CodeAuthDenied,
					"device authorization returned no token", nil)
			}
			return tok, nil
		case github.DeviceAuthorizationPending:
		case github.DeviceSlowDown:
			interval += slowDownStep
			if tok.Interval > 0 {
				interval = time.Duration(tok.Interval) * time.Second
			}
			log.Debug("device poll slowed down", "interval", interval)
		case github.DeviceExpired:
			return github.DeviceToken{}, apperrors.New(apperrors.CodeAuthTimedOut,
				"device code expired before authorization", nil)
		case github.DeviceAccessDenied:
			return github.DeviceToken{}, apperrors.New(apperrors.CodeAuthDenied,
				"device authorization denied", nil)
		default:
			return github.DeviceToken{}, apperrors.New(apperrors.CodeAuthDenied,
				fmt.Sprintf("device authorization failed: %s %s", tok.Error, tok.Description), nil)
		}
	}
}

// pollStopped distinguishes a cancelled caller from an elapsed timeout.
func pollStopped(parent context.Context) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return apperrors.New(apperrors.CodeAuthDenied, "device authorization cancelled", parent.Err())
	}
	return apperrors.New(apperrors.CodeAuthTimedOut, "timed out waiting for device authorization", context.DeadlineExceeded)
}
