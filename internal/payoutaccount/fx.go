package payoutaccount

import (
	"github.com/smallbiznis/payoutd/internal/payoutaccount/repository"
	"github.com/smallbiznis/payoutd/internal/payoutaccount/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payoutaccount.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
