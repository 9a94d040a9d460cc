package chat

import (
	"os"
	"sync"

	"github.com/go-go-golems/multichat/pkg/errdefs"
	"github.com/go-go-golems/multichat/pkg/inference/engine"
	"github.com/go-go-golems/multichat/pkg/inference/engine/factory"
	"github.com/go-go-golems/multichat/pkg/steps/ai/settings"
	"github.com/go-go-golems/multichat/pkg/steps/ai/types"
	"github.com/iancoleman/strcase"
	"github.com/rs/zerolog/log"
)

// ConfigStore loads and saves the provider Configuration.
type ConfigStore interface {
	Load() (*settings.Configuration, error)
	Save(cfg *settings.Configuration) error
}

// Registry holds the Configuration and the single active engine. The engine
// is chosen when a provider is activated, not per call.
type Registry struct {
	mu       sync.RWMutex
	factory  factory.EngineFactory
	store    ConfigStore
	config   *settings.Configuration
	activeID types.ProviderID
	active   engine.Engine
	// activeErr is set when the configured provider could not be activated.
	activeErr error

	keyLookup func(string) string
}

type RegistryOption func(*Registry)

// WithKeyLookup resolves "<slug>-api-key" names for providers whose stored
// key is empty. Resolved keys are never saved.
func WithKeyLookup(lookup func(string) string) RegistryOption {
	return func(r *Registry) {
		r.keyLookup = lookup
	}
}

// EnvKeyLookup maps "openai-api-key" to $MULTICHAT_OPENAI_API_KEY.
func EnvKeyLookup(name string) string {
	return os.Getenv("MULTICHAT_" + strcase.ToScreamingSnake(name))
}

func NewRegistry(f factory.EngineFactory, store ConfigStore, options ...RegistryOption) *Registry {
	r := &Registry{
		factory: f,
		store:   store,
		config:  settings.NewConfiguration(),
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Load reads the Configuration and activates its provider. An activation
// failure is logged and kept; generation then reports it as the reply.
func (r *Registry) Load() error {
	cfg, err := r.store.Load()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = cfg
	if err := r.activateLocked(cfg.ActiveProvider); err != nil {
		log.Error().Err(err).Str("provider", cfg.ActiveProvider.String()).Msg("Could not activate provider")
		r.active = nil
		r.activeID = cfg.ActiveProvider
		r.activeErr = err
	}
	return nil
}

// Activate switches to provider id using the current Configuration. On
// failure the previously active provider stays in place.
func (r *Registry) Activate(id types.ProviderID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.activateLocked(id); err != nil {
		return err
	}
	r.config.ActiveProvider = id
	return nil
}

func (r *Registry) activateLocked(id types.ProviderID) error {
	e, err := r.build(r.config, id)
	if err != nil {
		return err
	}
	r.activeID = id
	r.active = e
	r.activeErr = nil
	log.Info().Str("provider", id.String()).Msg("Activated provider")
	return nil
}

func (r *Registry) build(cfg *settings.Configuration, id types.ProviderID) (engine.Engine, error) {
	if err := r.factory.ValidateSettings(id, cfg.Provider(id)); err != nil {
		return nil, err
	}
	return r.factory.CreateEngine(id)
}

// SetConfiguration validates cfg, saves it, and activates its provider. An
// invalid configuration is neither saved nor activated.
func (r *Registry) SetConfiguration(cfg *settings.Configuration) error {
	if cfg == nil {
		return &errdefs.ValidationError{Field: "configuration", Reason: "missing"}
	}
	if !cfg.ActiveProvider.IsValid() {
		return &errdefs.ConfigurationError{Provider: string(cfg.ActiveProvider), Reason: "unsupported provider"}
	}
	next := cfg.Clone()
	next.Heal()
	for _, id := range types.AllProviders() {
		if err := next.Provider(id).Validate(id); err != nil {
			return err
		}
	}

	e, err := r.build(next, next.ActiveProvider)
	if err != nil {
		return err
	}
	if err := r.store.Save(next); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = next
	r.activeID = next.ActiveProvider
	r.active = e
	r.activeErr = nil
	log.Info().Str("provider", next.ActiveProvider.String()).Msg("Saved configuration")
	return nil
}

// Configuration returns a copy of the current Configuration.
func (r *Registry) Configuration() *settings.Configuration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Clone()
}

// ActiveProvider returns the identifier of the active provider.
func (r *Registry) ActiveProvider() types.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

// Active returns the engine and the configuration to call it with.
func (r *Registry) Active() (types.ProviderID, engine.Engine, settings.ProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		err := r.activeErr
		if err == nil {
			err = &errdefs.ConfigurationError{Provider: r.activeID.String(), Reason: "no provider is active"}
		}
		return r.activeID, nil, settings.ProviderConfig{}, err
	}
	cfg := r.config.Provider(r.activeID).WithAPIKeyFallback(r.activeID, r.keyLookup)
	return r.activeID, r.active, cfg, nil
}

// Label is the active provider line shown to the user.
func (r *Registry) Label() string {
	return "Current API: " + r.ActiveProvider().String()
}
