package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Newrona-pi/textgame-chatapp/internal/character"
	"github.com/Newrona-pi/textgame-chatapp/internal/completion"
	"github.com/Newrona-pi/textgame-chatapp/internal/config"
	"github.com/Newrona-pi/textgame-chatapp/internal/dialogue"
	"github.com/Newrona-pi/textgame-chatapp/internal/geocode"
	"github.com/Newrona-pi/textgame-chatapp/internal/httpapi"
	"github.com/Newrona-pi/textgame-chatapp/internal/observability"
	"github.com/Newrona-pi/textgame-chatapp/internal/policy"
	"github.com/Newrona-pi/textgame-chatapp/internal/prompt"
	"github.com/Newrona-pi/textgame-chatapp/internal/records"
	"github.com/Newrona-pi/textgame-chatapp/internal/situation"
)

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Dialogue   *dialogue.Service
	Roster     *character.Roster
	Situations *situation.Builder
	Composer   *prompt.Composer
	Records    records.Store
	Metrics    *observability.Metrics

	// Cleanup should be called on shutdown to release the record store.
	Cleanup func() error
}

// Build wires every component from cfg. Nothing is process-global: each call
// gets its own metrics registry, geocode cache and clients.
func Build(ctx context.Context, cfg config.Config, log zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	roster, err := LoadRoster(cfg, log)
	if err != nil {
		return nil, err
	}

	situations, err := situation.NewBuilder(cfg.Timezone, NewResolver(cfg, log, metrics))
	if err != nil {
		return nil, err
	}

	composer, err := prompt.NewComposer()
	if err != nil {
		return nil, err
	}

	client, err := completion.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("completion client init failed: %w", err)
	}
	client = completion.WithMetrics(client, metrics)

	store, err := records.NewStore(ctx, cfg.DatabaseURL, policy.Redactor{Enabled: cfg.RedactLogPII})
	if err != nil {
		return nil, fmt.Errorf("record store init failed: %w", err)
	}

	svc := dialogue.NewService(roster, situations, composer, client, dialogue.Options{
		DefaultCharacterID: cfg.DefaultCharacterID,
		DefaultAffection:   cfg.DefaultAffection,
		Logger:             log,
		Metrics:            metrics,
	})

	api := httpapi.New(cfg, svc, store, metrics, log)

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Dialogue:   svc,
		Roster:     roster,
		Situations: situations,
		Composer:   composer,
		Records:    store,
		Metrics:    metrics,
		Cleanup:    store.Close,
	}, nil
}

// LoadRoster reads the character table using the configured column schema.
func LoadRoster(cfg config.Config, log zerolog.Logger) (*character.Roster, error) {
	schema := character.DefaultSchema()
	if cfg.CharacterColumns != "" {
		override, err := character.ParseSchema(cfg.CharacterColumns)
		if err != nil {
			return nil, fmt.Errorf("parse CHARACTER_COLUMNS: %w", err)
		}
		schema = override
	}
	roster, err := character.LoadFile(cfg.CharactersFile, schema, log)
	if err != nil {
		return nil, fmt.Errorf("load characters: %w", err)
	}
	return roster, nil
}

// NewResolver returns the cached Nominatim resolver, or a disabled one when GEOCODER_MODE=off.
func NewResolver(cfg config.Config, log zerolog.Logger, metrics *observability.Metrics) geocode.Resolver {
	if cfg.GeocoderMode == config.GeocoderModeOff {
		return geocode.Disabled{}
	}
	upstream := geocode.NewNominatimClient(geocode.NominatimConfig{
		BaseURL:   cfg.GeocoderURL,
		UserAgent: cfg.GeocoderUserAgent,
		Timeout:   cfg.GeocoderTimeout,
	})
	return geocode.NewCachedResolver(upstream, cfg.GeocodeCacheSize, cfg.GeocodeCacheTTL, log, metrics)
}
