package handlers

import (
	"context"
	"fmt"
)

// Pinger is satisfied by clients that can check connectivity, such as quota.RedisStats.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker reports unhealthy when Ping fails.
func PingChecker(p Pinger) HealthChecker {
	return CheckerFunc(func(ctx context.Context) error {
		if p == nil {
			return fmt.Errorf("not configured")
		}
		return p.Ping(ctx)
	})
}

// CredentialChecker reports degraded when no upstream API key is configured.
// Requests still flow but the recipe API will reject them.
func CredentialChecker(hasCredential func() bool) HealthChecker {
	return CheckerFunc(func(context.Context) error {
		if hasCredential == nil || !hasCredential() {
			return fmt.Errorf("upstream api key missing: %w", ErrDegraded)
		}
		return nil
	})
}
