package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Set serializes v and stores it under key, replacing any prior value.
func (s *Store) Set(ctx context.Context, key string, v any) error {
	data, err := marshalValue(v)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	if err := s.putEntry(ctx, key, kindValue, data); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// SetBlob stores raw bytes under key, replacing any prior value.
func (s *Store) SetBlob(ctx context.Context, key string, data []byte) error {
	if err := s.putEntry(ctx, key, kindBlob, data); err != nil {
		return fmt.Errorf("set blob %q: %w", key, err)
	}
	return nil
}

// Delete removes the value stored under key, inline or file-backed.
// Deleting a missing key is not an error. Large blobs are removed with
// DeleteLargeBlob.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.deleteEntry(ctx, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	if err := removeFile(s.filePath(key)); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) deleteEntry(ctx context.Context, key string) error {
	if _, err := s.writer.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key); err != nil {
		return err
	}
	s.Refresh()
	return nil
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// putEntry upserts one row. Overwrites are full replacements.
func (s *Store) putEntry(ctx context.Context, key string, kind int, raw []byte) error {
	e, err := s.encodeEntry(kind, raw)
	if err != nil {
		return err
	}
	if e.data == nil {
		// data is NOT NULL; an empty blob is a zero-length value.
		e.data = []byte{}
	}

	_, err = s.writer.ExecContext(ctx, `
		INSERT INTO entries (key, kind, codec, size, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			kind = excluded.kind,
			codec = excluded.codec,
			size = excluded.size,
			data = excluded.data
	`, key, e.kind, int(e.codec), e.size, e.data)
	if err != nil {
		return err
	}

	// Our own commit must be visible to our next read.
	s.Refresh()

	// A key holds one logical value: drop any file-backed value it shadowed.
	if err := removeFile(s.filePath(key)); err != nil {
		return err
	}
	s.logger.Debug("cache write", "key", key, "size", e.size, "codec", e.codec.String())
	return nil
}
