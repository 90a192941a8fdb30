package storage

import (
	"context"
	"errors"

	json "github.com/goccy/go-json"

	"timekeeper/internal/progress"
)

// documentKey names the single persisted document in keyed backends.
const documentKey = "state"

// ErrUnknownDriver is returned by Open for an unsupported storage driver.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Account is one persisted user record. Progress is nil for legacy records
// written before progress tracking existed.
type Account struct {
	Identity   string          `json:"identity"`
	Credential string          `json:"credential"`
	Progress   *progress.State `json:"progress,omitempty"`
}

// Document is the whole persisted state, rewritten on every mutation.
type Document struct {
	GlobalCounter int64     `json:"globalCounter"`
	Accounts      []Account `json:"accounts"`
}

// EmptyDocument is what a fresh deployment starts from.
func EmptyDocument() Document {
	return Document{Accounts: []Account{}}
}

// Clone copies the document so a caller can prepare a mutation without
// touching the version it read.
func (d Document) Clone() Document {
	out := Document{GlobalCounter: d.GlobalCounter, Accounts: make([]Account, len(d.Accounts))}
	for i, account := range d.Accounts {
		if account.Progress != nil {
			p := account.Progress.Clone()
			account.Progress = &p
		}
		out.Accounts[i] = account
	}
	return out
}

// DocumentStore persists the single state document.
type DocumentStore interface {
	// Load returns the stored document or EmptyDocument when none exists yet.
	Load(ctx context.Context) (Document, error)
	// Save replaces the stored document.
	Save(ctx context.Context, doc Document) error
	Close() error
}

// Config selects and parameterizes a DocumentStore backend.
type Config struct {
	Driver   string
	Path     string
	DSN      string
	Compress bool
}

// Open builds the backend named by cfg.Driver and prepares its schema.
func Open(ctx context.Context, cfg Config) (DocumentStore, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.Path, cfg.Compress)
	case "sqlite":
		store, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, ErrUnknownDriver
	}
}

func decodeDocument(data []byte) (Document, error) {
	doc := EmptyDocument()
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, err
	}
	if doc.Accounts == nil {
		doc.Accounts = []Account{}
	}
	return doc, nil
}

func encodeDocument(doc Document) ([]byte, error) {
	if doc.Accounts == nil {
		doc.Accounts = []Account{}
	}
	return json.Marshal(doc)
}
