package config

import (
	"fmt"

	"github.com/graphmesh/graphmesh/internal/util"
	"github.com/graphmesh/graphmesh/pkg/graph"
)

const (
	DbTypeRelational    = "relational"
	DbTypePropertyGraph = "propertyGraph"
)

// Neo4j holds the property-graph credentials.
type Neo4j struct {
	URI      string
	User     string
	Password string
	Database string
}

// TextChunker holds the chunking budgets.
type TextChunker struct {
	LinesPerSplit      int
	TokensPerParagraph int
	Encoding           string
}

// AI holds the language-model settings, opaque to the engine.
type AI struct {
	Adapter string // "openai" (default) or "ollama"

	EmbeddingModel  string
	ChatModel       string
	ExtractionModel string

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	MaxConcurrentRequests int
}

// Config is the full runtime configuration, assembled from the environment.
type Config struct {
	DbType       string
	DbConnection string

	VectorConnection string
	VectorSize       int

	Neo4j Neo4j

	Chunker TextChunker

	Search graph.Options

	AI AI
}

// Load reads the configuration from the environment. Validation covers only
// what the process cannot run without.
func Load() (*Config, error) {
	cfg := &Config{
		DbType:       util.GetEnvString("DB_TYPE", DbTypeRelational),
		DbConnection: util.GetEnv("DB_CONNECTION"),

		VectorConnection: util.GetEnv("VECTOR_CONNECTION"),
		VectorSize:       util.GetEnvInt("VECTOR_SIZE", 1536),

		Neo4j: Neo4j{
			URI:      util.GetEnv("NEO4J_URI"),
			User:     util.GetEnv("NEO4J_USER"),
			Password: util.GetEnv("NEO4J_PASSWORD"),
			Database: util.GetEnvString("NEO4J_DATABASE", "neo4j"),
		},

		Chunker: TextChunker{
			LinesPerSplit:      util.GetEnvInt("CHUNKER_LINES_PER_SPLIT", 100),
			TokensPerParagraph: util.GetEnvInt("CHUNKER_TOKENS_PER_PARAGRAPH", 1000),
			Encoding:           util.GetEnvString("CHUNKER_ENCODING", "cl100k_base"),
		},

		Search: graph.Options{
			SearchLimit:        util.GetEnvInt("GRAPH_SEARCH_LIMIT", 5),
			SearchMinRelevance: util.GetEnvFloat("GRAPH_SEARCH_MIN_RELEVANCE", 0.6),
			NodeDepth:          util.GetEnvInt("GRAPH_NODE_DEPTH", 3),
			MaxNodes:           util.GetEnvInt("GRAPH_MAX_NODES", 100),
			MaxTokens:          util.GetEnvInt("GRAPH_MAX_TOKENS", 4000),
			ExtractRetries:     util.GetEnvInt("GRAPH_EXTRACT_RETRIES", 3),
		},

		AI: AI{
			Adapter: util.GetEnvString("AI_ADAPTER", "openai"),

			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:       util.GetEnv("AI_CHAT_MODEL"),
			ExtractionModel: util.GetEnv("AI_EXTRACT_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: util.GetEnvInt("AI_PARALLEL_REQ", 4),
		},
	}

	if cfg.VectorConnection == "" {
		cfg.VectorConnection = cfg.DbConnection
	}
	if cfg.VectorConnection == "" {
		return nil, fmt.Errorf("VECTOR_CONNECTION or DB_CONNECTION must be set")
	}

	switch cfg.DbType {
	case DbTypeRelational:
		if cfg.DbConnection == "" {
			return nil, fmt.Errorf("DB_CONNECTION must be set for db type %q", cfg.DbType)
		}
	case DbTypePropertyGraph:
		if cfg.Neo4j.URI == "" {
			return nil, fmt.Errorf("NEO4J_URI must be set for db type %q", cfg.DbType)
		}
	default:
		return nil, fmt.Errorf("unknown db type %q", cfg.DbType)
	}

	return cfg, nil
}
