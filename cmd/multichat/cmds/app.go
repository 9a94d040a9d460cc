package cmds

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-go-golems/multichat/pkg/chat"
	"github.com/go-go-golems/multichat/pkg/events"
	"github.com/go-go-golems/multichat/pkg/inference/engine"
	"github.com/go-go-golems/multichat/pkg/inference/engine/factory"
	"github.com/go-go-golems/multichat/pkg/sessions"
	"github.com/go-go-golems/multichat/pkg/steps/ai/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func configPath() string {
	return filepath.Join(viper.GetString("config-dir"), "config.yaml")
}

func sessionsDir() string {
	if dir := viper.GetString("sessions-dir"); dir != "" {
		return dir
	}
	return filepath.Join(viper.GetString("config-dir"), "sessions")
}

func openBackend() (sessions.Backend, error) {
	dir := sessionsDir()
	switch viper.GetString("store") {
	case "", "dir":
		return sessions.NewDirBackend(dir)
	case "sqlite":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "could not create %s", dir)
		}
		dsn, err := sessions.SQLiteSessionDSNForFile(filepath.Join(dir, "sessions.db"))
		if err != nil {
			return nil, err
		}
		return sessions.NewSQLiteBackend(dsn)
	default:
		return nil, errors.Errorf("unknown session store %q (dir, sqlite)", viper.GetString("store"))
	}
}

// keyLookup resolves "<slug>-api-key" from flags and MULTICHAT_* variables.
// withDebugTap installs a DiskTap into ctx when --debug-tap names a directory.
func withDebugTap(ctx context.Context) (context.Context, error) {
	dir := viper.GetString("debug-tap")
	if dir == "" {
		return ctx, nil
	}
	tap, err := engine.NewDiskTap(dir)
	if err != nil {
		return nil, err
	}
	log.Info().Str("dir", dir).Msg("Writing provider payloads")
	return engine.WithDebugTap(ctx, tap), nil
}

func keyLookup(name string) string {
	return viper.GetString(name)
}

// openApp wires the application from the command line settings and loads
// the configuration and the stored sessions.
func openApp(ctx context.Context, options ...chat.AppOption) (*chat.App, error) {
	backend, err := openBackend()
	if err != nil {
		return nil, err
	}
	store := sessions.NewStore(backend)
	registry := chat.NewRegistry(
		factory.NewStandardEngineFactory(),
		settings.NewFileStore(configPath()),
		chat.WithKeyLookup(keyLookup),
	)

	router, err := events.NewEventRouter(
		events.WithLogger(events.NewWatermill(log.Logger)),
		events.WithVerbose(viper.GetBool("verbose")),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	options = append(options, chat.WithEventRouter(router))

	app, err := chat.NewApp(store, registry, options...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	warnings, err := app.Load(ctx)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	for _, w := range warnings {
		log.Warn().Err(w).Msg("Skipped session")
	}
	return app, nil
}
