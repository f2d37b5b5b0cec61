package neo4j

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/graphmesh/graphmesh/pkg/logger"
)

const (
	maxRetryAttempts = 3
	retryBaseDelay   = 200 * time.Millisecond
)

// GraphDBStore implements the GraphStore interface on Neo4j. Nodes carry the
// label Node, edges are a single RELATES_TO relationship type with a
// direction-normalized deterministic id and a reversed flag preserving the
// authored direction.
type GraphDBStore struct {
	driver   neo4j.DriverWithContext
	database string

	initOnce sync.Once
	initErr  error
}

// NewGraphDBStore connects to Neo4j and verifies connectivity. Constraints
// are created lazily on first use, exactly once per process.
func NewGraphDBStore(ctx context.Context, uri, user, password, database string) (*GraphDBStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}

	return &GraphDBStore{
		driver:   driver,
		database: database,
	}, nil
}

// Close releases the underlying connection pool.
func (s *GraphDBStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *GraphDBStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

// ensureConstraints creates the uniqueness constraint and index used by the
// adapter. Exactly one initializer runs to completion before any operation
// proceeds.
func (s *GraphDBStore) ensureConstraints(ctx context.Context) error {
	s.initOnce.Do(func() {
		session := s.session(ctx)
		defer session.Close(ctx)

		statements := []string{
			`CREATE CONSTRAINT node_id_unique IF NOT EXISTS FOR (n:Node) REQUIRE n.id IS UNIQUE`,
			`CREATE INDEX node_graph_index IF NOT EXISTS FOR (n:Node) ON (n.graph_index)`,
			`CREATE INDEX community_graph_index IF NOT EXISTS FOR (c:Community) ON (c.graph_index)`,
		}
		for _, stmt := range statements {
			if _, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
				_, err := tx.Run(ctx, stmt, nil)
				return nil, err
			}); err != nil {
				s.initErr = fmt.Errorf("failed to ensure constraints: %w", err)
				return
			}
		}
		logger.Debug("[Neo4j] Constraints ensured")
	})
	return s.initErr
}

// withRetry runs fn up to maxRetryAttempts times, doubling the delay between
// attempts, as long as the driver classifies the error as retryable.
func (s *GraphDBStore) withRetry(ctx context.Context, fn func(context.Context) error) error {
	if err := s.ensureConstraints(ctx); err != nil {
		return err
	}

	delay := retryBaseDelay
	var lastErr error
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !neo4j.IsRetryable(err) || attempt == maxRetryAttempts-1 {
			return err
		}

		logger.Warn("[Neo4j] Transient error, retrying", "attempt", attempt+1, "err", err)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
	return lastErr
}

func recordString(record *neo4j.Record, key string) string {
	value, ok := record.Get(key)
	if !ok {
		return ""
	}
	str, _ := value.(string)
	return str
}

func recordBool(record *neo4j.Record, key string) bool {
	value, ok := record.Get(key)
	if !ok {
		return false
	}
	b, _ := value.(bool)
	return b
}
