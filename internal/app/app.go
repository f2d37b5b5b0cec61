package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/graphmesh/graphmesh/internal/config"
	"github.com/graphmesh/graphmesh/pkg/ai"
	aiollama "github.com/graphmesh/graphmesh/pkg/ai/ollama"
	aiopenai "github.com/graphmesh/graphmesh/pkg/ai/openai"
	"github.com/graphmesh/graphmesh/pkg/chunker"
	"github.com/graphmesh/graphmesh/pkg/graph"
	"github.com/graphmesh/graphmesh/pkg/leaselock"
	"github.com/graphmesh/graphmesh/pkg/store"
	storeneo4j "github.com/graphmesh/graphmesh/pkg/store/neo4j"
	storepgx "github.com/graphmesh/graphmesh/pkg/store/pgx"
	"github.com/graphmesh/graphmesh/pkg/vector"
)

// App bundles the shared components of the server and the worker.
type App struct {
	Cfg *config.Config

	VectorPool *pgxpool.Pool
	Store      store.GraphStore
	Vector     vector.Memory
	AiClient   ai.GraphAIClient
	Engine     *graph.Engine
	Chunker    *chunker.Chunker
	Locks      *leaselock.Client

	neo4jStore *storeneo4j.GraphDBStore
}

// New wires the configured adapters together. The vector pool doubles as the
// relational store connection when both point at the same database.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	aiClient, err := newAIClient(cfg)
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.VectorConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to parse vector connection string: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	vectorPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to vector database: %w", err)
	}

	a := &App{
		Cfg:        cfg,
		VectorPool: vectorPool,
		AiClient:   aiClient,
		Vector:     vector.NewPgMemory(vectorPool, aiClient),
		Locks:      leaselock.New(vectorPool),
	}

	switch cfg.DbType {
	case config.DbTypePropertyGraph:
		neo4jStore, err := storeneo4j.NewGraphDBStore(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			vectorPool.Close()
			return nil, err
		}
		a.neo4jStore = neo4jStore
		a.Store = neo4jStore
	default:
		if cfg.DbConnection == cfg.VectorConnection {
			a.Store = storepgx.NewGraphDBStoreWithConnection(vectorPool)
		} else {
			dbPool, err := pgxpool.New(ctx, cfg.DbConnection)
			if err != nil {
				vectorPool.Close()
				return nil, fmt.Errorf("failed to connect to database: %w", err)
			}
			a.Store = storepgx.NewGraphDBStoreWithConnection(dbPool)
		}
	}

	a.Engine = graph.NewEngine(a.Store, a.Vector, graph.NewSemanticClient(aiClient), cfg.Search)

	a.Chunker, err = chunker.New(cfg.Chunker.LinesPerSplit, cfg.Chunker.TokensPerParagraph, cfg.Chunker.Encoding)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	return a, nil
}

// Close releases all held connections.
func (a *App) Close(ctx context.Context) {
	if a.neo4jStore != nil {
		_ = a.neo4jStore.Close(ctx)
	}
	if a.VectorPool != nil {
		a.VectorPool.Close()
	}
}

func newAIClient(cfg *config.Config) (ai.GraphAIClient, error) {
	switch cfg.AI.Adapter {
	case "ollama":
		return aiollama.NewGraphOllamaClient(aiollama.NewGraphOllamaClientParams{
			EmbeddingModel:  cfg.AI.EmbeddingModel,
			ChatModel:       cfg.AI.ChatModel,
			ExtractionModel: cfg.AI.ExtractionModel,

			EmbeddingDimensions: cfg.VectorSize,

			BaseURL: cfg.AI.ChatURL,
			ApiKey:  cfg.AI.ChatKey,

			MaxConcurrentRequests: int64(cfg.AI.MaxConcurrentRequests),
		})
	default:
		return aiopenai.NewGraphOpenAIClient(aiopenai.NewGraphOpenAIClientParams{
			EmbeddingModel:  cfg.AI.EmbeddingModel,
			ChatModel:       cfg.AI.ChatModel,
			ExtractionModel: cfg.AI.ExtractionModel,

			EmbeddingDimensions: cfg.VectorSize,

			EmbeddingURL: cfg.AI.EmbeddingURL,
			EmbeddingKey: cfg.AI.EmbeddingKey,
			ChatURL:      cfg.AI.ChatURL,
			ChatKey:      cfg.AI.ChatKey,
		}), nil
	}
}
