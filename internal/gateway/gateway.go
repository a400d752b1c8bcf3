// Package gateway forwards recipe search and ingredient parsing requests to the
// recipe API under per-client quotas.
package gateway

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/recipegate/recipegate/internal/errors"
	"github.com/recipegate/recipegate/internal/metrics"
	"github.com/recipegate/recipegate/internal/observability"
	"github.com/recipegate/recipegate/internal/quota"
	"github.com/recipegate/recipegate/internal/upstream"
)

// DisabledSearchParams lists search flags that are too expensive to allow,
// in the order they are checked.
var DisabledSearchParams = []string{"fillIngredients", "addRecipeNutrition"}

// DefaultMaxFormBytes caps the ingredient form body.
const DefaultMaxFormBytes = 1 << 20

// Upstream performs calls to the recipe API.
type Upstream interface {
	Get(ctx context.Context, path string, params url.Values) (*upstream.Response, error)
	Post(ctx context.Context, path string, form url.Values) (*upstream.Response, error)
}

// Limiter admits requests against a named quota rule.
type Limiter interface {
	Admit(ctx context.Context, identity, ruleName string) (quota.Decision, error)
}

// Gateway validates, rate limits, and forwards requests.
type Gateway struct {
	upstream     Upstream
	limiter      Limiter
	maxFormBytes int64
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithMaxFormBytes overrides the ingredient form size limit.
func WithMaxFormBytes(n int64) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxFormBytes = n
		}
	}
}

// New builds a Gateway.
func New(client Upstream, limiter Limiter, opts ...Option) *Gateway {
	g := &Gateway{
		upstream:     client,
		limiter:      limiter,
		maxFormBytes: DefaultMaxFormBytes,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Search forwards params to the recipe search endpoint. Disabled flags are
// rejected before the quota is consulted, so a rejected request costs nothing.
func (g *Gateway) Search(ctx context.Context, identity string, params url.Values) (*upstream.Response, quota.Decision, error) {
	if err := CheckDisabledParams(params); err != nil {
		return nil, quota.Decision{}, err
	}

	return g.forward(ctx, identity, quota.RuleSearch, upstream.PathComplexSearch, func(ctx context.Context) (*upstream.Response, error) {
		return g.upstream.Get(ctx, upstream.PathComplexSearch, params)
	})
}

// ParseIngredients forwards form to the ingredient parsing endpoint.
func (g *Gateway) ParseIngredients(ctx context.Context, identity string, form url.Values) (*upstream.Response, quota.Decision, error) {
	return g.forward(ctx, identity, quota.RuleIngredients, upstream.PathParseIngredients, func(ctx context.Context) (*upstream.Response, error) {
		return g.upstream.Post(ctx, upstream.PathParseIngredients, form)
	})
}

// CheckDisabledParams returns a FORBIDDEN envelope naming the first disabled
// flag set to true.
func CheckDisabledParams(params url.Values) error {
	for _, name := range DisabledSearchParams {
		for _, value := range params[name] {
			if strings.EqualFold(strings.TrimSpace(value), "true") {
				metrics.RecordParamRejection(name)
				return apperrors.NewForbiddenError(name + " is disabled.")
			}
		}
	}
	return nil
}

// forward runs call under the rule's quota. The reservation is settled exactly
// once: committed when call returns a response, rolled back otherwise
// (including when call panics).
func (g *Gateway) forward(ctx context.Context, identity, rule, path string, call func(context.Context) (*upstream.Response, error)) (*upstream.Response, quota.Decision, error) {
	decision, err := g.limiter.Admit(ctx, identity, rule)
	if err != nil {
		return nil, decision, apperrors.WrapInternal(ctx, err, "rate limiter failed")
	}
	if !decision.Allowed {
		return nil, decision, apperrors.NewRateLimitedError(decision.Description())
	}

	succeeded := false
	defer func() {
		settleCtx := context.WithoutCancel(ctx)
		if settleErr := decision.Reservation.Settle(settleCtx, succeeded); settleErr != nil {
			logWarn("quota settlement failed",
				zap.String("rule", rule),
				zap.Bool("succeeded", succeeded),
				zap.Error(settleErr),
			)
		}
	}()

	start := time.Now()
	resp, err := call(ctx)
	metrics.RecordUpstreamCall(path, upstreamStatus(resp, err), time.Since(start))
	if err != nil {
		return nil, decision, err
	}

	succeeded = true
	return resp, decision, nil
}

func upstreamStatus(resp *upstream.Response, err error) int {
	var upstreamErr *upstream.Error
	switch {
	case resp != nil:
		return resp.StatusCode
	case errors.As(err, &upstreamErr):
		return upstreamErr.StatusCode
	default:
		return 0
	}
}

func logWarn(msg string, fields ...zap.Field) {
	if observability.ServerLogger != nil {
		observability.ServerLogger.Warn(msg, fields...)
	}
}
