package search

import (
	"context"
	"fmt"

	"go-style-scout/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresSearcher calls the match function directly on a pgvector database.
type PostgresSearcher struct {
	pool  *pgxpool.Pool
	query string
}

// NewPostgresSearcher opens a connection pool and checks that the database is
// reachable.
func NewPostgresSearcher(ctx context.Context, dsn, matchFunction string) (*PostgresSearcher, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresSearcher{pool: pool, query: matchQuery(matchFunction)}, nil
}

func matchQuery(matchFunction string) string {
	return fmt.Sprintf(`SELECT id::text, coalesce(name, ''), coalesce(brand, ''), price::text,
       coalesce(image_url, ''), coalesce(product_url, ''), similarity
FROM %s($1::vector, $2, $3)`, pgx.Identifier{matchFunction}.Sanitize())
}

// Search implements Searcher.
func (s *PostgresSearcher) Search(ctx context.Context, vector []float32, threshold float64, count int) ([]models.MatchCandidate, error) {
	rows, err := s.pool.Query(ctx, s.query, VectorLiteral(vector), threshold, count)
	if err != nil {
		return nil, fmt.Errorf("query match function: %w", err)
	}
	defer rows.Close()

	var out []models.MatchCandidate
	for rows.Next() {
		var (
			c     models.MatchCandidate
			id    string
			price *string
		)
		if err := rows.Scan(&id, &c.Name, &c.Brand, &price, &c.ImageURL, &c.ProductURL, &c.Similarity); err != nil {
			return nil, fmt.Errorf("scan match row: %w", err)
		}
		c.ID = models.ProductID(id)
		if price != nil {
			d, err := decimal.NewFromString(*price)
			if err != nil {
				return nil, fmt.Errorf("parse price %q: %w", *price, err)
			}
			c.Price = models.NewPrice(d)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match rows: %w", err)
	}

	return Rank(out, threshold, count), nil
}

// Close releases the pool.
func (s *PostgresSearcher) Close() error {
	s.pool.Close()
	return nil
}
