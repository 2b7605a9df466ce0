package temporalx

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/questweaver/internal/platform/logger"
)

func TestClampBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{10, time.Second},
	}
	for _, c := range cases {
		if got := clampBackoff(100*time.Millisecond, time.Second, c.attempt); got != c.want {
			t.Fatalf("attempt %d: got %s want %s", c.attempt, got, c.want)
		}
	}
}

func TestIsRetryableRPC(t *testing.T) {
	if !isRetryableRPC(status.Error(codes.Unavailable, "down")) {
		t.Fatalf("unavailable should retry")
	}
	if isRetryableRPC(status.Error(codes.PermissionDenied, "no")) {
		t.Fatalf("permission denied should not retry")
	}
	if !isRetryableRPC(context.DeadlineExceeded) || isRetryableRPC(errors.New("boom")) || isRetryableRPC(nil) {
		t.Fatalf("unexpected classification of plain errors")
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	c, err := NewClient(logger.Nop(), Config{})
	if err != nil || c != nil {
		t.Fatalf("expected disabled client, got %v %v", c, err)
	}
}

func TestLoadTLSConfigRequiresPair(t *testing.T) {
	if _, err := loadTLSConfig(Config{ClientCAPath: "/tmp/ca.pem"}); err == nil {
		t.Fatalf("expected error without cert and key")
	}
}
