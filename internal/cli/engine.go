package cli

import (
	"database/sql"

	"offline-sync-engine/internal/config"
	"offline-sync-engine/internal/domain"
	"offline-sync-engine/internal/remote"
	"offline-sync-engine/internal/repository"
	"offline-sync-engine/internal/service"

	"go.uber.org/zap"
)

// engine is the wired sync stack shared by the serve and sync commands.
type engine struct {
	db     *sql.DB
	client *remote.Client

	sync       *service.SyncService
	documents  *service.DocumentService
	businesses *service.BusinessService
	articles   *service.ArticleService
}

func newEngine(cfg *config.Config, logger *zap.Logger, observer service.CycleObserver) (*engine, error) {
	db, err := repository.OpenSQLite(cfg.Local.Path)
	if err != nil {
		return nil, err
	}

	client, err := remote.New(cfg.Remote.URL, remote.Options{
		RequestTimeout: cfg.Remote.RequestTimeout,
		PageSize:       cfg.Remote.PageSize,
		Logger:         logger.Named("remote"),
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	docs := repository.NewDocumentRepository(db)
	intents := repository.NewSyncIntentRepository(db)
	registry := domain.DefaultRegistry()
	schemas := service.NewSchemaValidator()
	clock := service.SystemClock

	monitor := service.NewNetworkMonitor(client, cfg.Sync.ProbeTimeout, logger.Named("monitor"))
	push := service.NewPushEngine(docs, intents, client, registry, clock, logger.Named("push"))
	pull := service.NewPullEngine(docs, client, registry, schemas, clock, logger.Named("pull"))
	syncService := service.NewSyncService(monitor, push, pull, clock, logger.Named("sync"), service.SyncOptions{
		ProbeInterval: cfg.Sync.ProbeInterval,
		SyncInterval:  cfg.Sync.Interval,
		Observer:      observer,
	})

	documents := service.NewDocumentService(docs, intents, registry, schemas, syncService, clock, logger.Named("documents"))

	return &engine{
		db:         db,
		client:     client,
		sync:       syncService,
		documents:  documents,
		businesses: service.NewBusinessService(documents, logger.Named("businesses")),
		articles:   service.NewArticleService(documents),
	}, nil
}

// Close stops background work and releases both stores.
func (e *engine) Close() error {
	e.sync.Stop()
	e.client.Close()
	return e.db.Close()
}
