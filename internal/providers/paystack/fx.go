package paystack

import "go.uber.org/fx"

var Module = fx.Module("providers.paystack",
	fx.Provide(New),
)
