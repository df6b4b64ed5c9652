package wallet

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/samsavage/railgun-mcp/internal/filestore"
)

// FileStore keeps one JSON file per wallet, the default storage under
// ~/.railgun/wallets.
type FileStore struct {
	files *filestore.Collection[Wallet]
	mu    sync.Mutex // serialises the uniqueness check in Create
}

// NewFileStore opens (creating if needed) a wallet directory.
func NewFileStore(dir string) (*FileStore, error) {
	files, err := filestore.Open[Wallet](dir)
	if err != nil {
		return nil, err
	}
	return &FileStore{files: files}, nil
}

func (f *FileStore) Create(ctx context.Context, w *Wallet) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.files.Exists(w.ID) {
		return ErrWalletExists
	}
	existing, err := f.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if strings.EqualFold(e.Address0x, w.Address0x) && e.Network == w.Network {
			return ErrWalletExists
		}
	}
	return f.files.Put(w.ID, w)
}

func (f *FileStore) Get(_ context.Context, id string) (*Wallet, error) {
	w, err := f.files.Get(id)
	if errors.Is(err, filestore.ErrNotFound) || errors.Is(err, filestore.ErrInvalidID) {
		return nil, ErrWalletNotFound
	}
	return w, err
}

// List returns every readable wallet. A corrupt file does not hide the
// others; it is reported only when nothing could be read.
func (f *FileStore) List(_ context.Context) ([]*Wallet, error) {
	ws, err := f.files.List()
	if err != nil && len(ws) == 0 {
		return nil, err
	}
	sortWallets(ws)
	return ws, nil
}

func (f *FileStore) Update(_ context.Context, w *Wallet) error {
	if !f.files.Exists(w.ID) {
		return ErrWalletNotFound
	}
	return f.files.Put(w.ID, w)
}
