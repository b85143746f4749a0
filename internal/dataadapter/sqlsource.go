package dataadapter

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQLSource reads rows from a database table. The statement must take the
// user query as its single bind parameter and carry its own ORDER BY so
// results are deterministic.
type SQLSource struct {
	db        *sqlx.DB
	name      string
	statement string
}

// NewSQLSource creates a source over an sqlx connection.
func NewSQLSource(db *sqlx.DB, name, statement string) *SQLSource {
	return &SQLSource{db: db, name: name, statement: statement}
}

func (s *SQLSource) Name() string {
	return s.name
}

// Read executes the statement with the query as parameter.
func (s *SQLSource) Read(ctx context.Context, query string) ([]Row, error) {
	rows, err := s.db.QueryxContext(ctx, s.statement, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, s.name, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		record := make(map[string]any)
		if err := rows.MapScan(record); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, s.name, err)
		}
		for k, v := range record {
			if b, ok := v.([]byte); ok {
				record[k] = string(b)
			}
		}
		out = append(out, Row(record))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, s.name, err)
	}
	return out, nil
}
