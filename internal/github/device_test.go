package github

import (
	"context"
	"testing"
	"time"

	"pyseed/internal/github/githubtest"
)

func TestDeviceFlowEndpoints(t *testing.T) {
	srv := githubtest.NewServer()
	defer srv.Close()
	srv.ScriptDevice("Iv1.test",
		githubtest.DeviceStep{Error: DeviceAuthorizationPending},
		githubtest.DeviceStep{Token: "gho_fresh"},
	)
	c := newTestClient(srv)
	ctx := context.Background()

	dc, err := c.RequestDeviceCode(ctx, "Iv1.test")
	if err != nil {
		t.Fatalf("RequestDeviceCode: %v", err)
	}
	if dc.UserCode != "ABCD-1234" || dc.Interval != 1 {
		t.Fatalf("unexpected device code %+v", dc)
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := dc.Expiry(now); !got.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("Expiry = %s", got)
	}

	tok, err := c.PollDeviceToken(ctx, "Iv1.test", dc.DeviceCode)
	if err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if tok.Error != DeviceAuthorizationPending {
		t.Fatalf("expected pending, got %+v", tok)
	}
	tok, err = c.PollDeviceToken(ctx, "Iv1.test", dc.DeviceCode)
	if err != nil || tok.AccessToken != "gho_fresh" {
		t.Fatalf("second poll: %+v, %v", tok, err)
	}
}

func TestRequestDeviceCodeUnknownClient(t *testing.T) {
	srv := githubtest.NewServer()
	defer srv.Close()
	srv.ScriptDevice("Iv1.test")

	if _, err := newTestClient(srv).RequestDeviceCode(context.Background(), "Iv1.other"); err == nil {
		t.Fatal("expected error for unknown client id")
	}
}
