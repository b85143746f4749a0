package dataadapter

import (
	"context"
	"strings"
)

// TableSource is an in-memory tabular source. Lookup order is exact key
// match first, then a case-insensitive substring scan over the configured
// search columns. Rows keep their insertion order so results are stable.
type TableSource struct {
	name       string
	keyColumn  string
	searchCols []string
	rows       []Row
	byKey      map[string]int
}

// NewTableSource creates a table over the given rows. keyColumn names the
// column holding the row's unique identifier.
func NewTableSource(name, keyColumn string, searchCols []string, rows []Row) *TableSource {
	t := &TableSource{
		name:       name,
		keyColumn:  keyColumn,
		searchCols: searchCols,
		rows:       rows,
		byKey:      make(map[string]int, len(rows)),
	}
	for i, row := range rows {
		if key, ok := row[keyColumn].(string); ok {
			t.byKey[strings.ToUpper(key)] = i
		}
	}
	return t
}

func (t *TableSource) Name() string {
	return t.name
}

// Read resolves the query against the table. Exact identifier matches win;
// otherwise every row whose search columns contain the query term matches.
func (t *TableSource) Read(ctx context.Context, query string) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	if i, ok := t.byKey[strings.ToUpper(query)]; ok {
		return []Row{t.rows[i]}, nil
	}

	needle := strings.ToLower(query)
	var matches []Row
	for _, row := range t.rows {
		if t.rowMatches(row, needle) {
			matches = append(matches, row)
		}
	}
	return matches, nil
}

func (t *TableSource) rowMatches(row Row, needle string) bool {
	for _, col := range t.searchCols {
		val, ok := row[col].(string)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(val), needle) {
			return true
		}
	}

	// Identifiers embedded in a longer query still hit their row.
	if key, ok := row[t.keyColumn].(string); ok {
		if strings.Contains(strings.ToUpper(needle), strings.ToUpper(key)) {
			return true
		}
	}
	return false
}
