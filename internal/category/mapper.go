package category

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"splitsync/internal/core"
	"splitsync/internal/log"
)

// Source lists the Splitter's categories.
type Source interface {
	Categories(ctx context.Context) ([]core.ExternalCategory, error)
}

// LocalDirectory resolves ledger categories by name.
type LocalDirectory interface {
	CategoryByName(ctx context.Context, name string) (*core.Category, error)
}

// Mapper resolves categories in both directions. The Splitter category table is
// fetched on first use and kept for the life of the Mapper.
type Mapper struct {
	source  Source
	local   LocalDirectory
	mapping *Mapping
	logger  *log.Logger

	mu         sync.Mutex
	categories []core.ExternalCategory
	loaded     bool
}

// NewMapper creates a Mapper. A nil mapping behaves as an empty one.
func NewMapper(source Source, local LocalDirectory, mapping *Mapping, logger *log.Logger) *Mapper {
	if mapping == nil {
		mapping = NewMapping()
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Mapper{
		source:  source,
		local:   local,
		mapping: mapping,
		logger:  logger.WithComponent(log.ComponentCategory),
	}
}

// Mapping returns the name table in use.
func (m *Mapper) Mapping() *Mapping {
	return m.mapping
}

func (m *Mapper) table(ctx context.Context) ([]core.ExternalCategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return m.categories, nil
	}
	if m.source == nil {
		return nil, nil
	}
	categories, err := m.source.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list splitter categories: %w", err)
	}
	m.categories = categories
	m.loaded = true
	m.logger.Debug("Loaded splitter categories", log.FieldCount, len(categories))
	return categories, nil
}

// ExternalName returns "<grouping>/<name>" for id, or "" when the id is unknown.
func (m *Mapper) ExternalName(ctx context.Context, id int) (string, error) {
	categories, err := m.table(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range categories {
		if c.ID == id {
			return c.FullName(), nil
		}
	}
	return "", nil
}

// ToLocal maps a Splitter category id to a ledger category. The full path is tried
// first, then the short name after the last "/". A miss anywhere yields nil, which
// callers treat as uncategorized.
func (m *Mapper) ToLocal(ctx context.Context, externalID int) (*core.Category, error) {
	name, err := m.ExternalName(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		m.logger.Debug("No splitter category for id", "category_id", externalID)
		return nil, nil
	}

	localName, ok := m.mapping.Lookup(name)
	if !ok {
		short := name[strings.LastIndex(name, "/")+1:]
		localName, ok = m.mapping.Lookup(short)
		if !ok {
			m.logger.Debug("No mapping for splitter category", "name", name, "short_name", short)
			return nil, nil
		}
	}

	if m.local == nil {
		return nil, nil
	}
	cat, err := m.local.CategoryByName(ctx, localName)
	if err != nil {
		return nil, fmt.Errorf("lookup ledger category %q: %w", localName, err)
	}
	m.logger.Debug("Mapped splitter category",
		"from", name,
		"to", localName,
		"found", cat != nil)
	return cat, nil
}

// ToExternal maps a ledger category name to a Splitter category id, 0 ("General")
// when localName is nil or nothing matches.
//
// Several Splitter categories may map to the same ledger category; the first one
// declared in the mapping is used.
func (m *Mapper) ToExternal(ctx context.Context, localName *string) (int, error) {
	if localName == nil {
		return 0, nil
	}
	external, ok := m.mapping.FirstFor(*localName)
	if !ok {
		return 0, nil
	}
	return m.IDByName(ctx, external)
}

// IDByName matches name against "grouping/name" or the bare name of each Splitter
// category, returning 0 when none matches.
func (m *Mapper) IDByName(ctx context.Context, name string) (int, error) {
	categories, err := m.table(ctx)
	if err != nil {
		return 0, err
	}
	for _, c := range categories {
		if name == c.Grouping+"/"+c.Name || name == c.Name {
			return c.ID, nil
		}
	}
	return 0, nil
}
