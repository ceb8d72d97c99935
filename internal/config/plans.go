package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Plan keys known to the platform. Webhook payloads referencing anything else
// are rejected before any persistence write.
const (
	PlanTrial      = "trial"
	PlanStarter    = "starter"
	PlanGrowth     = "growth"
	PlanScale      = "scale"
	PlanEnterprise = "enterprise"
)

// Plan describes one subscription tier.
type Plan struct {
	Key               string  `mapstructure:"key"`
	DisplayName       string  `mapstructure:"displayName"`
	MonthlyTryonLimit int     `mapstructure:"monthlyTryonLimit"`
	StripePriceID     string  `mapstructure:"stripePriceId"`
	AmountCents       int64   `mapstructure:"amountCents"`
	IngestRate        float64 `mapstructure:"ingestRate"`
	IngestBurst       int     `mapstructure:"ingestBurst"`
}

// PlanCatalog is the ordered set of tiers a shop can be on.
type PlanCatalog struct {
	Plans []Plan `mapstructure:"plans"`
}

// ByKey returns the plan for a given plan key.
func (c PlanCatalog) ByKey(key string) (Plan, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, p := range c.Plans {
		if p.Key == key {
			return p, true
		}
	}
	return Plan{}, false
}

// ByStripePriceID returns the plan whose subscription price matches.
func (c PlanCatalog) ByStripePriceID(priceID string) (Plan, bool) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return Plan{}, false
	}
	for _, p := range c.Plans {
		if p.StripePriceID == priceID {
			return p, true
		}
	}
	return Plan{}, false
}

// Trial returns the fallback tier shops land on after a subscription ends.
func (c PlanCatalog) Trial() Plan {
	if p, ok := c.ByKey(PlanTrial); ok {
		return p
	}
	return Plan{Key: PlanTrial, DisplayName: "Trial", MonthlyTryonLimit: 50}
}

// DefaultPlanCatalog is used when no plans.yml override is mounted.
func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Plans: []Plan{
			{Key: PlanTrial, DisplayName: "Trial", MonthlyTryonLimit: 50, IngestRate: 1, IngestBurst: 5},
			{Key: PlanStarter, DisplayName: "Starter", MonthlyTryonLimit: 500, AmountCents: 2900, IngestRate: 5, IngestBurst: 20},
			{Key: PlanGrowth, DisplayName: "Growth", MonthlyTryonLimit: 2500, AmountCents: 9900, IngestRate: 15, IngestBurst: 60},
			{Key: PlanScale, DisplayName: "Scale", MonthlyTryonLimit: 10000, AmountCents: 29900, IngestRate: 40, IngestBurst: 150},
			{Key: PlanEnterprise, DisplayName: "Enterprise", MonthlyTryonLimit: 100000, IngestRate: 100, IngestBurst: 400},
		},
	}
}

// PlanCatalogHolder keeps the active catalog and swaps it atomically on reload.
type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

// NewPlanCatalogHolder loads plans.yml (volume-mounted in deployment, current
// directory in dev) and watches it for changes.
func NewPlanCatalogHolder(log *zap.Logger) (*PlanCatalogHolder, error) {
	log = log.Named("plan.catalog")
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/fitmirror/config")
	v.AddConfigPath("/etc/fitmirror")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FITMIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	useDefaults := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		useDefaults = true
	}

	cfg := DefaultPlanCatalog()
	if !useDefaults {
		if err := v.UnmarshalKey("catalog", &cfg); err != nil {
			return nil, err
		}
		if err := validatePlanCatalog(cfg); err != nil {
			return nil, err
		}
	}

	holder := &PlanCatalogHolder{}
	holder.current.Store(cfg)

	if !useDefaults {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated PlanCatalog
			if err := v.UnmarshalKey("catalog", &updated); err != nil {
				log.Warn("plan catalog reload failed", zap.Error(err))
				return
			}
			if err := validatePlanCatalog(updated); err != nil {
				log.Warn("invalid plan catalog ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("plan catalog reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

// NewStaticPlanCatalogHolder wraps a fixed catalog with no file watching.
// Intended for tests and tooling.
func NewStaticPlanCatalogHolder(cfg PlanCatalog) *PlanCatalogHolder {
	holder := &PlanCatalogHolder{}
	holder.current.Store(cfg)
	return holder
}

// Catalog returns the active plan catalog.
func (h *PlanCatalogHolder) Catalog() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

func validatePlanCatalog(cfg PlanCatalog) error {
	if len(cfg.Plans) == 0 {
		return errors.New("catalog.plans cannot be empty")
	}
	seen := make(map[string]struct{}, len(cfg.Plans))
	for _, p := range cfg.Plans {
		key := strings.ToLower(strings.TrimSpace(p.Key))
		if key == "" {
			return errors.New("catalog.plans entry missing key")
		}
		if _, dup := seen[key]; dup {
			return errors.New("catalog.plans contains duplicate key " + key)
		}
		seen[key] = struct{}{}
		if p.MonthlyTryonLimit <= 0 {
			return errors.New("catalog.plans " + key + " must set monthlyTryonLimit")
		}
	}
	if _, ok := cfg.ByKey(PlanTrial); !ok {
		return errors.New("catalog.plans must include the trial tier")
	}
	return nil
}
