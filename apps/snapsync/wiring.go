package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/tilsley/snapsync/apps/snapsync/internal/config"
	"github.com/tilsley/snapsync/apps/snapsync/internal/platform/github"
	"github.com/tilsley/snapsync/apps/snapsync/internal/platform/postgres"
	"github.com/tilsley/snapsync/apps/snapsync/internal/platform/telemetry"
	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot"
	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot/adapters"
	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot/store"
	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot/store/pgmigrations"
)

// indexKeyName is reported when the vector store credential is missing.
const indexKeyName = "OPENAI_API_KEY"

// buildService assembles the pipeline from cfg.
func buildService(cfg *config.Config, log *slog.Logger) (*snapshot.Service, error) {
	gh, err := github.NewClient(cfg.GitHub.Token.Value(), github.AppCredentials{
		AppID:          cfg.GitHub.AppID,
		InstallationID: cfg.GitHub.InstallationID,
		PrivateKeyPath: cfg.GitHub.PrivateKeyPath,
	}, cfg.GitHub.APIURL)
	if err != nil {
		return nil, fmt.Errorf("github client: %w", err)
	}
	repo := adapters.NewGitHub(gh, cfg.Source.Owner, cfg.Source.Repo)

	rootURL := cfg.Source.RootURL
	if rootURL == "" {
		rootURL = repo.RootURL(cfg.Source.RootPath, cfg.Source.Ref)
	}

	walker, err := snapshot.NewWalker(repo, cfg.WalkExcludes(), log)
	if err != nil {
		return nil, fmt.Errorf("walker: %w", err)
	}

	// Raw downloads of private repositories need the same credentials as the API.
	rawClient := *gh.Client()
	rawClient.Timeout = cfg.Source.FetchTimeout
	fetcher := snapshot.NewFetcher(&rawClient, cfg.Source.FetchDelay, log)

	resolver := snapshot.NewResolver(snapshot.NewChardetDetector(), cfg.Encoding.Fallback, cfg.Encoding.MinConfidence, log)
	index := adapters.NewVectorStore(cfg.Index.BaseURL, cfg.Index.APIKey.Value(), indexKeyName, nil)
	publisher := snapshot.NewPublisher(repo, index, cfg.PublishSettings(), log)

	return snapshot.NewService(walker, fetcher, resolver, publisher, snapshot.Settings{
		RootURL:      rootURL,
		ArtifactPath: cfg.Snapshot.ArtifactPath,
		Sanitize:     cfg.Snapshot.Sanitize,
	}, log), nil
}

// openStores connects the optional run history and event log. A store that
// cannot be reached is logged and left disabled; runs still proceed.
func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (snapshot.RunStore, snapshot.EventStore, func()) {
	var (
		runs    snapshot.RunStore
		events  snapshot.EventStore
		closers []func()
	)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password.Value(),
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("run history disabled: redis unreachable", "addr", cfg.Redis.Addr, "error", err)
			_ = rdb.Close()
		} else {
			runs = store.NewRedisRunStore(rdb, cfg.Redis.Retention)
			closers = append(closers, func() { _ = rdb.Close() })
		}
	}

	if cfg.Postgres.URL.IsSet() {
		pool, err := postgres.New(ctx, cfg.Postgres.URL.Value(), pgmigrations.FS)
		if err != nil {
			log.Warn("event log disabled: postgres unavailable", "error", err)
		} else {
			events = store.NewPGEventStore(pool)
			closers = append(closers, pool.Close)
		}
	}

	return runs, events, func() {
		for _, c := range closers {
			c()
		}
	}
}

func telemetryOptions(cfg *config.Config) telemetry.Options {
	return telemetry.Options{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
	}
}
