package config

import (
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/maintly/maintly/internal/pricing"
	"github.com/spf13/viper"
)

type PricingConfig struct {
	Tiers []pricing.Tier `mapstructure:"tiers"`
}

type PricingConfigHolder struct {
	current atomic.Value // holds PricingConfig
}

func NewPricingConfigHolder() (*PricingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/maintly/config") // Volume-mounted config
	v.AddConfigPath("/etc/maintly")            // System config
	v.AddConfigPath(".")                       // Current directory (dev mode)

	// env hanya untuk path override (optional)
	v.SetEnvPrefix("MAINTLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	useDefaults := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// if config file not found, use defaults
		useDefaults = true
	}

	var cfg PricingConfig
	if useDefaults {
		cfg = PricingConfig{Tiers: pricing.DefaultTiers()}
	} else if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return nil, err
	}
	if err := pricing.ValidateTable(cfg.Tiers); err != nil {
		return nil, err
	}

	holder := &PricingConfigHolder{}
	holder.current.Store(cfg)

	if useDefaults {
		// No file to watch; the compiled-in table stays in effect.
		return holder, nil
	}

	// 🔥 HOT RELOAD
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PricingConfig
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Printf("[pricing-config] reload failed: %v", err)
			return
		}
		if err := pricing.ValidateTable(updated.Tiers); err != nil {
			log.Printf("[pricing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pricing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PricingConfigHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

// Tiers returns the currently loaded tier table.
func (h *PricingConfigHolder) Tiers() []pricing.Tier {
	return h.Get().Tiers
}
