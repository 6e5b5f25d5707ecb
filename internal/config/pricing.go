package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/memoria/internal/catalog"
	"github.com/smallbiznis/memoria/internal/pricing"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type overrideRow struct {
	ProductType     string `mapstructure:"product_type"`
	HostingDuration string `mapstructure:"hosting_duration"`
	UnitAmount      int64  `mapstructure:"unit_amount"`
	Currency        string `mapstructure:"currency"`
	EffectiveFrom   string `mapstructure:"effective_from"`
	EffectiveUntil  string `mapstructure:"effective_until"`
}

// PricingHolder keeps the latest pricing overrides read from pricing.yml.
// It only snapshots data; resolution happens in pricing.Resolve.
type PricingHolder struct {
	current  atomic.Value // holds []pricing.Override
	defaults pricing.Table
}

func NewPricingHolder(cfg Config) (*PricingHolder, error) {
	holder := &PricingHolder{defaults: pricing.DefaultTable(cfg.SettlementCurrency)}
	holder.current.Store([]pricing.Override{})

	v := viper.New()
	if strings.TrimSpace(cfg.PricingFile) != "" {
		v.SetConfigFile(cfg.PricingFile)
	} else {
		v.SetConfigName("pricing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/memoria")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return holder, nil
		}
		return nil, err
	}

	overrides, err := readOverrides(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(overrides)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := readOverrides(v)
		if err != nil {
			zap.L().Warn("pricing reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		zap.L().Info("pricing reloaded", zap.String("file", e.Name), zap.Int("overrides", len(updated)))
	})

	return holder, nil
}

// NewStaticPricingHolder builds a holder without a backing file.
func NewStaticPricingHolder(currency string, overrides []pricing.Override) *PricingHolder {
	holder := &PricingHolder{defaults: pricing.DefaultTable(currency)}
	holder.current.Store(append([]pricing.Override(nil), overrides...))
	return holder
}

func (h *PricingHolder) Overrides() []pricing.Override {
	return h.current.Load().([]pricing.Override)
}

func (h *PricingHolder) Defaults() pricing.Table {
	return h.defaults
}

func readOverrides(v *viper.Viper) ([]pricing.Override, error) {
	var rows []overrideRow
	if err := v.UnmarshalKey("pricing.overrides", &rows); err != nil {
		return nil, err
	}

	out := make([]pricing.Override, 0, len(rows))
	for i, row := range rows {
		productType, err := catalog.ParseProductType(row.ProductType)
		if err != nil {
			return nil, fmt.Errorf("pricing.overrides[%d]: %w", i, err)
		}
		duration, err := catalog.ParseHostingDuration(row.HostingDuration)
		if err != nil {
			return nil, fmt.Errorf("pricing.overrides[%d]: %w", i, err)
		}
		if row.UnitAmount <= 0 {
			return nil, fmt.Errorf("pricing.overrides[%d]: unit_amount must be positive", i)
		}
		from, err := time.Parse(time.RFC3339, strings.TrimSpace(row.EffectiveFrom))
		if err != nil {
			return nil, fmt.Errorf("pricing.overrides[%d]: effective_from: %w", i, err)
		}
		override := pricing.Override{
			Key:           pricing.Key{ProductType: productType, HostingDuration: duration},
			UnitAmount:    row.UnitAmount,
			Currency:      strings.ToUpper(strings.TrimSpace(row.Currency)),
			EffectiveFrom: from.UTC(),
		}
		if until := strings.TrimSpace(row.EffectiveUntil); until != "" {
			parsed, err := time.Parse(time.RFC3339, until)
			if err != nil {
				return nil, fmt.Errorf("pricing.overrides[%d]: effective_until: %w", i, err)
			}
			parsed = parsed.UTC()
			override.EffectiveUntil = &parsed
		}
		out = append(out, override)
	}
	return out, nil
}
