package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// FileStore keeps the state document in one file, optionally zstd-compressed.
// Writes go to a temp file that is renamed over the target.
type FileStore struct {
	path    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewFileStore prepares a file-backed store at path.
func NewFileStore(path string, compress bool) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("file store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store := &FileStore{path: path}
	if compress {
		encoder, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
		if err != nil {
			encoder.Close()
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		store.encoder = encoder
		store.decoder = decoder
	}
	return store, nil
}

// Load reads the document; a missing file yields EmptyDocument.
func (f *FileStore) Load(_ context.Context) (Document, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return EmptyDocument(), nil
		}
		return Document{}, err
	}
	if f.decoder != nil && len(data) > 0 {
		data, err = f.decoder.DecodeAll(data, nil)
		if err != nil {
			return Document{}, fmt.Errorf("decompress document: %w", err)
		}
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Save writes the document and fsyncs it before the rename.
func (f *FileStore) Save(_ context.Context, doc Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if f.encoder != nil {
		data = f.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	}

	tmpFile := f.path + ".tmp"
	file, err := os.OpenFile(tmpFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err = file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}
	if err = file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}
	if err = file.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}
	return os.Rename(tmpFile, f.path)
}

// Close releases the codec resources.
func (f *FileStore) Close() error {
	if f.encoder != nil {
		_ = f.encoder.Close()
	}
	if f.decoder != nil {
		f.decoder.Close()
	}
	return nil
}
