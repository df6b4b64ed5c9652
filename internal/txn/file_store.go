package txn

import (
	"context"
	"errors"
	"strings"

	"github.com/samsavage/railgun-mcp/internal/filestore"
	"github.com/samsavage/railgun-mcp/internal/logging"
)

// FileStore keeps one JSON file per record under ~/.railgun/transactions.
type FileStore struct {
	files *filestore.Collection[Record]
}

// NewFileStore opens (creating if needed) a record directory.
func NewFileStore(dir string) (*FileStore, error) {
	files, err := filestore.Open[Record](dir)
	if err != nil {
		return nil, err
	}
	return &FileStore{files: files}, nil
}

func (f *FileStore) Create(_ context.Context, r *Record) error {
	return f.files.Put(r.ID, r)
}

func (f *FileStore) Get(_ context.Context, id string) (*Record, error) {
	r, err := f.files.Get(id)
	if errors.Is(err, filestore.ErrNotFound) || errors.Is(err, filestore.ErrInvalidID) {
		return nil, ErrNotFound
	}
	return r, err
}

func (f *FileStore) GetByHash(ctx context.Context, hash string) (*Record, error) {
	all, err := f.all(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range all {
		if r.TxHash != "" && strings.EqualFold(r.TxHash, hash) {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (f *FileStore) Update(_ context.Context, r *Record) error {
	if !f.files.Exists(r.ID) {
		return ErrNotFound
	}
	return f.files.Put(r.ID, r)
}

func (f *FileStore) List(ctx context.Context, q Query) ([]*Record, int, error) {
	all, err := f.all(ctx)
	if err != nil {
		return nil, 0, err
	}
	recs, total := page(all, q)
	return recs, total, nil
}

func (f *FileStore) Pending(ctx context.Context, limit int) ([]*Record, error) {
	all, err := f.all(ctx)
	if err != nil {
		return nil, err
	}
	return pending(all, limit), nil
}

// all reads every record, logging unreadable files instead of failing.
func (f *FileStore) all(ctx context.Context) ([]*Record, error) {
	recs, err := f.files.List()
	if err != nil {
		if len(recs) == 0 {
			return nil, err
		}
		logging.L(ctx).Warn("skipping unreadable transaction records", "dir", f.files.Dir(), "error", err)
	}
	return recs, nil
}
