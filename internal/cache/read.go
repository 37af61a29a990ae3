package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/bundlecore/internal/ir"
)

// Has reports whether a value, inline or file-backed, is stored under key.
// Large blobs are probed with HasLargeBlob.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	if ok, err := fileExists(s.filePath(key)); err != nil {
		return false, fmt.Errorf("has %q: %w", key, err)
	} else if ok {
		return true, nil
	}

	var found bool
	err := s.withView(func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE key = ?`, key).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("has %q: %w", key, err)
	}
	return found, nil
}

// Get decodes the structured value stored under key into v.
// Returns found=false, and leaves v untouched, if the key is unknown.
func (s *Store) Get(ctx context.Context, key string, v any) (bool, error) {
	raw, found, err := s.readEntry(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get %q: %w", key, err)
	}
	if !found {
		return false, nil
	}
	if err := unmarshalValue(raw, v); err != nil {
		return false, fmt.Errorf("get %q: %w", key, err)
	}
	return true, nil
}

// GetBlob returns the raw bytes stored under key.
// A missing key is an error (ir NOT_FOUND): blob reads are expected to
// follow an existence check by the caller.
func (s *Store) GetBlob(ctx context.Context, key string) ([]byte, error) {
	raw, found, err := s.readEntry(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get blob %q: %w", key, err)
	}
	if !found {
		return nil, ir.NewNotFoundError("get blob", key)
	}
	return raw, nil
}

// GetBuffer is GetBlob with absent-on-miss semantics.
func (s *Store) GetBuffer(ctx context.Context, key string) ([]byte, bool, error) {
	raw, found, err := s.readEntry(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("get buffer %q: %w", key, err)
	}
	return raw, found, nil
}

// EntryInfo describes one stored inline value without its payload.
type EntryInfo struct {
	Key         string         `json:"key"`
	Kind        string         `json:"kind"`
	Size        int            `json:"size"`
	StoredSize  int            `json:"stored_size"`
	Compression CompressionTag `json:"compression"`
}

// List returns metadata for every inline value whose key starts with
// prefix, ordered by key.
func (s *Store) List(ctx context.Context, prefix string) ([]EntryInfo, error) {
	var infos []EntryInfo
	err := s.withView(func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT key, kind, codec, size, length(data)
			FROM entries
			WHERE substr(CAST(key AS BLOB), 1, ?) = CAST(? AS BLOB)
			ORDER BY key COLLATE BINARY ASC
		`, len(prefix), prefix)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				info  EntryInfo
				kind  int
				codec int
			)
			if err := rows.Scan(&info.Key, &kind, &codec, &info.Size, &info.StoredSize); err != nil {
				return err
			}
			info.Kind = kindName(kind)
			info.Compression = CompressionTag(codec)
			infos = append(infos, info)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	if infos == nil {
		infos = []EntryInfo{}
	}
	return infos, nil
}

// readEntry loads and decompresses the row for key.
func (s *Store) readEntry(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		e     entry
		codec int
		found bool
	)
	err := s.withView(func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT kind, codec, size, data FROM entries WHERE key = ?
		`, key).Scan(&e.kind, &codec, &e.size, &e.data)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, false, err
	}
	e.codec = CompressionTag(codec)

	raw, err := e.raw()
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		raw = []byte{}
	}
	return raw, true, nil
}

func kindName(kind int) string {
	switch kind {
	case kindValue:
		return "value"
	case kindBlob:
		return "blob"
	default:
		return fmt.Sprintf("unknown(%d)", kind)
	}
}
