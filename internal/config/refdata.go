package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CarrierRange is one contiguous block of operator prefixes.
type CarrierRange struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
	Name  string `yaml:"name"`
}

// CarrierTable holds the region's mobile numbering plan.
type CarrierTable struct {
	Version      int            `yaml:"version"`
	CountryCode  string         `yaml:"country_code"`
	MobilePrefix string         `yaml:"mobile_prefix"`
	LocalLength  int            `yaml:"local_length"`
	Ranges       []CarrierRange `yaml:"ranges"`
}

// Resolve maps a fixed-width operator prefix (e.g. "0300") to a carrier
// name. Returns "" when the prefix is not allocated.
func (t *CarrierTable) Resolve(prefix string) string {
	for _, r := range t.Ranges {
		if prefix >= r.Start && prefix <= r.End {
			return r.Name
		}
	}
	return ""
}

// CityTierGroup lists the cities assigned to one risk tier.
type CityTierGroup struct {
	Tier   int      `yaml:"tier"`
	Cities []string `yaml:"cities"`
}

// CityTiers holds delivery-risk tiers per city.
type CityTiers struct {
	Version     int             `yaml:"version"`
	DefaultTier int             `yaml:"default_tier"`
	Tiers       []CityTierGroup `yaml:"tiers"`

	lookup map[string]int
}

// TierFor returns the risk tier for a city, falling back to the default.
func (c *CityTiers) TierFor(city string) int {
	if c.lookup == nil {
		c.lookup = make(map[string]int)
		for _, g := range c.Tiers {
			for _, name := range g.Cities {
				c.lookup[strings.ToLower(strings.TrimSpace(name))] = g.Tier
			}
		}
	}
	if tier, ok := c.lookup[strings.ToLower(strings.TrimSpace(city))]; ok {
		return tier
	}
	return c.DefaultTier
}

// StatSignal configures one statistical sub-signal.
type StatSignal struct {
	Weight    float64 `yaml:"weight"`
	MinOrders int     `yaml:"min_orders"`
}

// DecayStep is one step of the customer-history recency decay.
type DecayStep struct {
	MaxAgeDays int     `yaml:"max_age_days"`
	Factor     float64 `yaml:"factor"`
}

// VelocityConfig configures the shared-identity velocity penalty.
type VelocityConfig struct {
	DistinctIdentityThreshold int     `yaml:"distinct_identity_threshold"`
	PenaltyPerIdentity        float64 `yaml:"penalty_per_identity"`
	MaxPenalty                float64 `yaml:"max_penalty"`
}

// StatWeights holds the statistical layer's tunable shape.
type StatWeights struct {
	Version        int                   `yaml:"version"`
	MinTotalWeight float64               `yaml:"min_total_weight"`
	Signals        map[string]StatSignal `yaml:"signals"`
	RecencyDecay   []DecayStep           `yaml:"recency_decay"`
	Velocity       VelocityConfig        `yaml:"velocity"`
}

// DecayFor returns the recency factor for a customer whose last order is
// ageDays old.
func (w *StatWeights) DecayFor(ageDays float64) float64 {
	for _, step := range w.RecencyDecay {
		if ageDays <= float64(step.MaxAgeDays) {
			return step.Factor
		}
	}
	if len(w.RecencyDecay) == 0 {
		return 1.0
	}
	return w.RecencyDecay[len(w.RecencyDecay)-1].Factor
}

// LoadCarrierTable reads and parses a carrier prefix table.
func LoadCarrierTable(path string) (*CarrierTable, error) {
	var t CarrierTable
	if err := loadYAML(path, &t); err != nil {
		return nil, err
	}
	if t.LocalLength == 0 || t.CountryCode == "" {
		return nil, fmt.Errorf("carrier table %s: missing numbering plan fields", path)
	}
	return &t, nil
}

// LoadCityTiers reads and parses the city risk tier table.
func LoadCityTiers(path string) (*CityTiers, error) {
	var c CityTiers
	if err := loadYAML(path, &c); err != nil {
		return nil, err
	}
	if c.DefaultTier == 0 {
		c.DefaultTier = 2
	}
	return &c, nil
}

// LoadStatWeights reads and parses the statistical layer weights.
func LoadStatWeights(path string) (*StatWeights, error) {
	var w StatWeights
	if err := loadYAML(path, &w); err != nil {
		return nil, err
	}
	if w.MinTotalWeight <= 0 {
		w.MinTotalWeight = 0.5
	}
	return &w, nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read reference data %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse reference data %s: %w", path, err)
	}
	return nil
}
