package metrics

import (
	"context"

	"github.com/recipegate/recipegate/internal/quota"
)

// QuotaStats forwards limiter events to telemetry. It implements quota.StatsStore.
type QuotaStats struct{}

func (QuotaStats) Record(_ context.Context, ev quota.StatsEvent) error {
	RecordQuotaDecision(ev.Rule, string(ev.Outcome))
	return nil
}
