package payment

import (
	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/smallbiznis/payoutd/internal/payment/adapters"
	"github.com/smallbiznis/payoutd/internal/payment/adapters/paystack"
	"github.com/smallbiznis/payoutd/internal/payment/repository"
	paymentservice "github.com/smallbiznis/payoutd/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) *adapters.Registry {
		return adapters.NewRegistry(
			paystack.NewAdapter(cfg.Paystack.SecretKey),
		)
	}),
	fx.Provide(paymentservice.NewService),
)
