package recipe

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/samsavage/railgun-mcp/internal/filestore"
)

// MemoryStore is an in-memory recipe store.
type MemoryStore struct {
	recipes map[string]*Recipe
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory recipe store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recipes: make(map[string]*Recipe)}
}

func (m *MemoryStore) Create(_ context.Context, r *Recipe) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.recipes[r.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Recipe, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recipes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Recipe, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Recipe, 0, len(m.recipes))
	for _, r := range m.recipes {
		cp := *r
		out = append(out, &cp)
	}
	sortNewest(out)
	return out, nil
}

// FileStore keeps one JSON file per recipe under ~/.railgun/recipes.
type FileStore struct {
	files *filestore.Collection[Recipe]
}

// NewFileStore opens (creating if needed) a recipe directory.
func NewFileStore(dir string) (*FileStore, error) {
	files, err := filestore.Open[Recipe](dir)
	if err != nil {
		return nil, err
	}
	return &FileStore{files: files}, nil
}

func (f *FileStore) Create(_ context.Context, r *Recipe) error {
	return f.files.Put(r.ID, r)
}

func (f *FileStore) Get(_ context.Context, id string) (*Recipe, error) {
	r, err := f.files.Get(id)
	if errors.Is(err, filestore.ErrNotFound) || errors.Is(err, filestore.ErrInvalidID) {
		return nil, ErrNotFound
	}
	return r, err
}

func (f *FileStore) List(_ context.Context) ([]*Recipe, error) {
	rs, err := f.files.List()
	if err != nil && len(rs) == 0 {
		return nil, err
	}
	sortNewest(rs)
	return rs, nil
}

// PostgresStore persists recipes in PostgreSQL with steps as JSONB.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed recipe store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, r *Recipe) error {
	steps, err := json.Marshal(r.Steps)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO recipes (id, name, description, network, steps, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.Name, r.Description, r.Network, steps, r.CreatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Recipe, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, description, network, steps, created_at
		FROM recipes WHERE id = $1`, id)
	r, err := scanRecipe(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (p *PostgresStore) List(ctx context.Context) ([]*Recipe, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, description, network, steps, created_at
		FROM recipes ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Recipe
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecipe(sc scanner) (*Recipe, error) {
	r := &Recipe{}
	var steps []byte
	if err := sc.Scan(&r.ID, &r.Name, &r.Description, &r.Network, &steps, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(steps, &r.Steps); err != nil {
		return nil, err
	}
	return r, nil
}

func sortNewest(rs []*Recipe) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].CreatedAt.After(rs[j].CreatedAt) })
}
