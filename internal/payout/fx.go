package payout

import (
	"github.com/smallbiznis/payoutd/internal/payout/domain"
	"github.com/smallbiznis/payoutd/internal/payout/repository"
	"github.com/smallbiznis/payoutd/internal/payout/service"
	"github.com/smallbiznis/payoutd/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(repository.Provide),
	fx.Provide(userLock),
	fx.Provide(service.New),
)

func userLock(limiter *ratelimit.PayoutLimiter) domain.UserLock {
	if !limiter.Enabled() {
		return nil
	}
	return limiter
}
