// -----------------------------------------------------------------------
// Application wiring - builds every component in dependency order and
// exposes the high-level operations the commands drive
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/chunker"
	"github.com/ternarybob/lexa/internal/common"
	"github.com/ternarybob/lexa/internal/contextbuilder"
	"github.com/ternarybob/lexa/internal/embeddings"
	"github.com/ternarybob/lexa/internal/ingest"
	"github.com/ternarybob/lexa/internal/interfaces"
	"github.com/ternarybob/lexa/internal/llm"
	"github.com/ternarybob/lexa/internal/models"
	"github.com/ternarybob/lexa/internal/parser"
	"github.com/ternarybob/lexa/internal/pipeline"
	"github.com/ternarybob/lexa/internal/queue"
	"github.com/ternarybob/lexa/internal/rerank"
	"github.com/ternarybob/lexa/internal/retriever"
	"github.com/ternarybob/lexa/internal/scheduler"
	storagebadger "github.com/ternarybob/lexa/internal/storage/badger"
	"github.com/ternarybob/lexa/internal/vectorindex"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB *storagebadger.BadgerDB

	// Storage
	Documents     interfaces.DocumentStorage
	Chunks        interfaces.ChunkStorage
	Queries       interfaces.QueryStorage
	Sources       interfaces.SourceStorage
	Conversations interfaces.ConversationStorage
	Cache         interfaces.QueryCache

	// Ingestion
	Queue     *queue.Manager
	Processor *ingest.Processor
	Worker    *queue.Worker
	Scheduler *scheduler.Service

	// Query serving
	Provider interfaces.GenerationProvider
	Pipeline *pipeline.QueryPipeline

	// Shared clients so query vectors come from the same embedding
	// model as indexed chunks.
	embedder interfaces.EmbeddingClient
	index    interfaces.VectorIndex
}

// New initializes the application with all dependencies. The generation
// provider is optional: when no API key is configured, ingestion still
// runs and only query answering is unavailable.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := a.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := a.initIngestion(); err != nil {
		a.DB.Close()
		return nil, fmt.Errorf("failed to initialize ingestion: %w", err)
	}
	a.initQueryServing()

	logger.Info().
		Str("environment", cfg.Environment).
		Str("llm_provider", cfg.LLM.Provider).
		Bool("query_serving", a.Pipeline != nil).
		Msg("Application initialization complete")

	return a, nil
}

func (a *App) initStorage() error {
	db, err := storagebadger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.DB = db

	a.Documents = storagebadger.NewDocumentStorage(db, a.Logger)
	a.Chunks = storagebadger.NewChunkStorage(db, a.Logger)
	a.Queries = storagebadger.NewQueryStorage(db, a.Logger)
	a.Sources = storagebadger.NewSourceStorage(db, a.Logger)
	a.Conversations = storagebadger.NewConversationStorage(db, a.Logger)
	a.Cache = storagebadger.NewQueryCache(db, a.Logger)

	if err := os.MkdirAll(a.Config.Storage.RawDir, 0755); err != nil {
		return fmt.Errorf("failed to create raw directory: %w", err)
	}

	a.Logger.Debug().
		Str("path", a.Config.Storage.Badger.Path).
		Str("raw_dir", a.Config.Storage.RawDir).
		Msg("Storage layer initialized")
	return nil
}

func (a *App) initIngestion() error {
	queueMgr, err := queue.NewManager(
		a.DB.Store().Badger(),
		a.Config.Queue.Name,
		common.MustDuration(a.Config.Queue.VisibilityTimeout, 5*time.Minute),
		a.Config.Queue.MaxReceive,
		a.Logger,
	)
	if err != nil {
		return err
	}
	a.Queue = queueMgr

	chunkerSvc, err := chunker.New(a.Config.Ingest.ChunkSize, a.Config.Ingest.ChunkOverlap)
	if err != nil {
		return err
	}

	embedder := embeddings.NewClient(&a.Config.Embedding, a.Logger)
	index := vectorindex.NewClient(&a.Config.VectorIndex, a.Config.Embedding.Dimension, a.Logger)

	// Best effort at startup; upsert and search retry collection
	// creation when the vector store was unreachable here.
	if err := index.EnsureCollection(context.Background()); err != nil {
		a.Logger.Warn().Err(err).Msg("Vector collection not ready, will retry on first use")
	}

	a.Processor = ingest.NewProcessor(
		a.Documents,
		a.Chunks,
		parser.NewService(&a.Config.Ingest, a.Logger),
		chunkerSvc,
		embedder,
		index,
		queueMgr,
		a.Logger,
	)

	a.Worker = queue.NewWorker(
		queueMgr,
		a.Processor,
		common.MustDuration(a.Config.Queue.PollInterval, time.Second),
		a.Config.Queue.Concurrency,
		a.Logger,
	)

	a.Scheduler = scheduler.NewService(&a.Config.Scheduler, a.Documents, queueMgr, a.Logger)

	a.embedder = embedder
	a.index = index
	return nil
}

func (a *App) initQueryServing() {
	provider, err := llm.NewProvider(&a.Config.LLM, a.Logger)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Generation provider unavailable, query answering disabled")
		a.Logger.Info().Msg("Set llm.api_key (or ANTHROPIC_API_KEY / GEMINI_API_KEY) to enable queries")
		return
	}
	a.Provider = provider

	a.Pipeline = pipeline.NewQueryPipeline(
		a.Config,
		retriever.NewService(a.embedder, a.index, a.Logger),
		rerank.NewClient(&a.Config.Rerank, a.Logger),
		contextbuilder.NewAssembler(a.Logger),
		provider,
		a.Queries,
		a.Conversations,
		a.Cache,
		a.Logger,
	)
}

// Start launches the background worker and the refresh scheduler.
// The provider probe is warn-only so a provider outage does not block
// ingestion.
func (a *App) Start(ctx context.Context) error {
	if a.Provider != nil {
		if err := a.Provider.HealthCheck(ctx); err != nil {
			a.Logger.Warn().Err(err).Str("provider", a.Provider.Name()).Msg("Generation provider health check failed")
		} else {
			a.Logger.Debug().Str("provider", a.Provider.Name()).Msg("Generation provider health check passed")
		}
	}

	a.Worker.Start(ctx)
	if err := a.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// RunQuery answers a question through the query pipeline.
func (a *App) RunQuery(ctx context.Context, question string, opts interfaces.QueryOptions) (*interfaces.RAGResponse, error) {
	if a.Pipeline == nil {
		return nil, fmt.Errorf("query answering is disabled: no generation provider configured")
	}
	return a.Pipeline.Execute(ctx, question, opts)
}

// EnqueueDocument registers a document, stores its raw payload and
// queues an ingestion job. A zero-ID document gets a fresh identifier.
func (a *App) EnqueueDocument(ctx context.Context, doc *models.Document, content []byte) error {
	if doc.ID == "" {
		doc.ID = common.NewDocumentID()
	}
	if doc.RefreshPolicy == "" {
		doc.RefreshPolicy = models.RefreshMonthly
	}

	now := time.Now()
	doc.Status = models.StatusPending
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	if len(content) > 0 {
		rawPath := filepath.Join(a.Config.Storage.RawDir, doc.ID+".raw")
		if err := os.WriteFile(rawPath, content, 0644); err != nil {
			return fmt.Errorf("failed to store raw content: %w", err)
		}
		doc.RawPath = rawPath
	}

	if err := a.Documents.SaveDocument(doc); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	msg, err := models.NewIngestMessage(models.JobTypeIngest, models.IngestPayload{
		DocumentID: doc.ID,
		FilePath:   doc.RawPath,
	})
	if err != nil {
		return err
	}
	if err := a.Queue.EnqueueDeduped(ctx, msg, doc.ID); err != nil {
		return fmt.Errorf("failed to enqueue ingestion job: %w", err)
	}

	a.Logger.Info().
		Str("document_id", doc.ID).
		Str("source", string(doc.Source)).
		Msg("Document queued for ingestion")
	return nil
}

// ReprocessDocument purges derived data and queues a fresh ingestion.
func (a *App) ReprocessDocument(ctx context.Context, documentID string) error {
	return a.Processor.Reprocess(ctx, documentID)
}

// DeleteDocument removes a document, its chunks and its vectors.
func (a *App) DeleteDocument(ctx context.Context, documentID string) error {
	return a.Processor.Delete(ctx, documentID)
}

// TriggerRefreshSweep runs one refresh sweep outside the cron schedule.
func (a *App) TriggerRefreshSweep(ctx context.Context) error {
	return a.Scheduler.RunRefreshSweep(ctx)
}

// Close shuts down background work, then storage.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Worker != nil {
		a.Worker.Stop()
	}
	if a.Pipeline != nil {
		a.Pipeline.Close()
	}
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close queue")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}
	return nil
}
