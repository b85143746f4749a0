package dataadapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Row is an opaque key/value record from a structured source.
type Row map[string]any

// Source exposes a readable structured backend. Read must be deterministic:
// the same query against unchanged data returns the same rows in the same
// order.
type Source interface {
	Name() string
	Read(ctx context.Context, query string) ([]Row, error)
}

// ErrSourceUnavailable wraps any failure to read a backing source. Callers
// treat it as a recoverable degradation, not a turn failure.
var ErrSourceUnavailable = errors.New("source unavailable")

// Fragment is a normalized text excerpt derived from a structured source.
// It is an exact rendering of the source rows at fetch time and is never
// mutated afterwards.
type Fragment struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Adapter turns structured rows into model-consumable text fragments.
type Adapter struct {
	sources map[string]Source
	logger  *logrus.Logger
}

// NewAdapter creates an adapter over the given sources.
func NewAdapter(logger *logrus.Logger, sources ...Source) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	a := &Adapter{
		sources: make(map[string]Source),
		logger:  logger,
	}
	for _, src := range sources {
		a.sources[src.Name()] = src
	}
	return a
}

// Register adds a source, replacing any source with the same name.
func (a *Adapter) Register(src Source) {
	a.sources[src.Name()] = src
}

// Sources returns the registered source names in sorted order.
func (a *Adapter) Sources() []string {
	names := make([]string, 0, len(a.sources))
	for name := range a.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize reads the named source and renders each matching row as one
// fragment. Rendering is deterministic: row order comes from the source and
// columns are emitted in sorted key order.
func (a *Adapter) Normalize(ctx context.Context, sourceName, query string) ([]Fragment, error) {
	src, ok := a.sources[sourceName]
	if !ok {
		return nil, fmt.Errorf("%w: unknown source %q", ErrSourceUnavailable, sourceName)
	}

	rows, err := src.Read(ctx, query)
	if err != nil {
		if errors.Is(err, ErrSourceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, sourceName, err)
	}

	fetched := time.Now()
	fragments := make([]Fragment, 0, len(rows))
	for _, row := range rows {
		fragments = append(fragments, Fragment{
			ID:        uuid.New().String(),
			Source:    sourceName,
			Content:   renderRow(sourceName, row),
			FetchedAt: fetched,
		})
	}

	a.logger.WithFields(logrus.Fields{
		"source":    sourceName,
		"query":     query,
		"fragments": len(fragments),
	}).Debug("normalized structured data")

	return fragments, nil
}

// NormalizeAll queries every registered source in name order and
// concatenates the fragments.
func (a *Adapter) NormalizeAll(ctx context.Context, query string) ([]Fragment, error) {
	var out []Fragment
	for _, name := range a.Sources() {
		fragments, err := a.Normalize(ctx, name, query)
		if err != nil {
			return nil, err
		}
		out = append(out, fragments...)
	}
	return out, nil
}

// renderRow flattens a row into a single line: "source | k1=v1 | k2=v2".
// Keys are sorted so identical rows always render identically.
func renderRow(source string, row Row) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(source)
	for _, k := range keys {
		b.WriteString(" | ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(renderValue(row[k]))
	}
	return b.String()
}

func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []Row:
		parts := make([]string, len(val))
		for i, r := range val {
			keys := make([]string, 0, len(r))
			for k := range r {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			kv := make([]string, len(keys))
			for j, k := range keys {
				kv[j] = k + "=" + renderValue(r[k])
			}
			parts[i] = "{" + strings.Join(kv, ", ") + "}"
		}
		return strings.Join(parts, "; ")
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", val), "0"), ".")
	default:
		return fmt.Sprintf("%v", val)
	}
}
