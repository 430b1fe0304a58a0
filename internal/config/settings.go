package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Settings are the operator-tunable payout and subscription rules. They are
// read from settings.yml and reloaded on change without a restart.
type Settings struct {
	Payouts      PayoutSettings       `mapstructure:"payouts"`
	Subscription SubscriptionSettings `mapstructure:"subscription"`
}

type PayoutSettings struct {
	Currency        string        `mapstructure:"currency"`
	MinAmount       int64         `mapstructure:"minAmount"`
	MaxAmount       int64         `mapstructure:"maxAmount"`
	TransferReason  string        `mapstructure:"transferReason"`
	ProviderTimeout time.Duration `mapstructure:"providerTimeout"`
}

type SubscriptionSettings struct {
	PlanCode string `mapstructure:"planCode"`
	Amount   int64  `mapstructure:"amount"`
}

func DefaultSettings() Settings {
	return Settings{
		Payouts: PayoutSettings{
			Currency:        "NGN",
			MinAmount:       100,
			MaxAmount:       0,
			TransferReason:  "Earnings withdrawal",
			ProviderTimeout: 15 * time.Second,
		},
		Subscription: SubscriptionSettings{
			PlanCode: "",
			Amount:   500000,
		},
	}
}

type SettingsHolder struct {
	current atomic.Value // holds Settings
}

// NewStaticSettings returns a holder that never reloads.
func NewStaticSettings(s Settings) *SettingsHolder {
	holder := &SettingsHolder{}
	holder.current.Store(s)
	return holder
}

func NewSettingsHolder(cfg Config, log *zap.Logger) (*SettingsHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("settings")

	v := viper.New()
	if cfg.SettingsFile != "" {
		v.SetConfigFile(cfg.SettingsFile)
	} else {
		v.SetConfigName("settings")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/payoutd")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PAYOUTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSettings()
	v.SetDefault("payouts.currency", defaults.Payouts.Currency)
	v.SetDefault("payouts.minAmount", defaults.Payouts.MinAmount)
	v.SetDefault("payouts.maxAmount", defaults.Payouts.MaxAmount)
	v.SetDefault("payouts.transferReason", defaults.Payouts.TransferReason)
	v.SetDefault("payouts.providerTimeout", defaults.Payouts.ProviderTimeout)
	v.SetDefault("subscription.planCode", defaults.Subscription.PlanCode)
	v.SetDefault("subscription.amount", defaults.Subscription.Amount)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
		log.Info("settings file not found, using defaults")
	}

	settings, err := decodeSettings(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticSettings(settings)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSettings(v)
		if err != nil {
			log.Warn("settings reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("settings reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *SettingsHolder) Get() Settings {
	if h == nil {
		return DefaultSettings()
	}
	return h.current.Load().(Settings)
}

func decodeSettings(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, err
	}
	s.Payouts.Currency = strings.ToUpper(strings.TrimSpace(s.Payouts.Currency))
	if err := validateSettings(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func validateSettings(s Settings) error {
	if s.Payouts.Currency == "" {
		return errors.New("payouts.currency cannot be empty")
	}
	if s.Payouts.MinAmount <= 0 {
		return errors.New("payouts.minAmount must be positive")
	}
	if s.Payouts.MaxAmount != 0 && s.Payouts.MaxAmount < s.Payouts.MinAmount {
		return errors.New("payouts.maxAmount must be zero or at least minAmount")
	}
	if s.Payouts.ProviderTimeout <= 0 {
		return errors.New("payouts.providerTimeout must be positive")
	}
	if s.Subscription.Amount < 0 {
		return errors.New("subscription.amount cannot be negative")
	}
	return nil
}
