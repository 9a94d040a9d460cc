package settings

import (
	"github.com/go-go-golems/multichat/pkg/steps/ai/types"
	"github.com/huandu/go-clone"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Configuration is the process-wide provider configuration: one record per
// provider plus the one used for generation.
type Configuration struct {
	ActiveProvider types.ProviderID                      `yaml:"active_provider"`
	Providers      map[types.ProviderID]*ProviderConfig `yaml:"providers"`
}

// NewConfiguration returns the default configuration with every provider present.
func NewConfiguration() *Configuration {
	c := &Configuration{
		ActiveProvider: types.DefaultProvider,
		Providers:      map[types.ProviderID]*ProviderConfig{},
	}
	for _, id := range types.AllProviders() {
		c.Providers[id] = NewProviderConfig(id)
	}
	return c
}

func (c *Configuration) Clone() *Configuration {
	if c == nil {
		return nil
	}
	return clone.Clone(c).(*Configuration)
}

// Provider returns the record for id, or nil.
func (c *Configuration) Provider(id types.ProviderID) *ProviderConfig {
	if c == nil || c.Providers == nil {
		return nil
	}
	return c.Providers[id]
}

// Heal restores the invariants: every provider has a record, records carry a
// model and a system prompt, and the active provider names a present record.
// It reports whether anything changed.
func (c *Configuration) Heal() bool {
	changed := false
	if c.Providers == nil {
		c.Providers = map[types.ProviderID]*ProviderConfig{}
		changed = true
	}
	for _, id := range types.AllProviders() {
		pc, ok := c.Providers[id]
		if !ok || pc == nil {
			c.Providers[id] = NewProviderConfig(id)
			changed = true
			continue
		}
		if pc.Model == "" {
			pc.Model = DefaultModel(id)
			changed = true
		}
		if pc.SystemPrompt == "" {
			pc.SystemPrompt = DefaultSystemPrompt
			changed = true
		}
	}
	if _, ok := c.Providers[c.ActiveProvider]; !ok || !c.ActiveProvider.IsValid() {
		log.Warn().
			Str("active_provider", string(c.ActiveProvider)).
			Str("fallback", string(types.DefaultProvider)).
			Msg("active provider missing from configuration, falling back to default")
		c.ActiveProvider = types.DefaultProvider
		changed = true
	}
	return changed
}

// UnmarshalYAML reads both the nested layout (active_provider + providers)
// and the flat layout where provider names are top-level keys.
func (c *Configuration) UnmarshalYAML(value *yaml.Node) error {
	raw := map[string]yaml.Node{}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.Providers = map[types.ProviderID]*ProviderConfig{}
	if n, ok := raw["active_provider"]; ok {
		var s string
		if err := n.Decode(&s); err != nil {
			return err
		}
		c.ActiveProvider = types.ProviderID(s)
		if id, err := types.ParseProviderID(s); err == nil {
			c.ActiveProvider = id
		}
	}

	entries := raw
	if n, ok := raw["providers"]; ok {
		entries = map[string]yaml.Node{}
		if err := n.Decode(&entries); err != nil {
			return err
		}
	}

	for key, n := range entries {
		if key == "active_provider" {
			continue
		}
		id, err := types.ParseProviderID(key)
		if err != nil {
			log.Warn().Str("key", key).Msg("ignoring unknown provider in configuration")
			continue
		}
		pc := &ProviderConfig{}
		if err := n.Decode(pc); err != nil {
			return err
		}
		c.Providers[id] = pc
	}
	return nil
}
