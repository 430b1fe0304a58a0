package providers

import (
	"github.com/smallbiznis/payoutd/internal/providers/paystack"
	"github.com/smallbiznis/payoutd/internal/providers/pdf"
	"github.com/smallbiznis/payoutd/internal/providers/slack"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	paystack.Module,
	pdf.Module,
	slack.Module,
)
