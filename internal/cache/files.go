package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/bundlecore/internal/ir"
)

// filePath returns the on-disk path for a file-backed key.
func (s *Store) filePath(key string) string {
	name := url.PathEscape(key)
	// "." and ".." survive PathEscape and would address directories.
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	return filepath.Join(s.dir, filesDir, name)
}

// chunkKey names chunk i of a large blob.
func chunkKey(key string, i int) string {
	return key + "-" + strconv.Itoa(i)
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// writeFileAtomic copies r into a temp file under tmp/ and renames it over
// path. On any failure the temp file is removed and path is untouched.
// Errors reading r are reported as UPSTREAM_IO.
func (s *Store) writeFileAtomic(op, key, path string, r io.Reader) (n int64, err error) {
	name, err := uuid.NewV7()
	if err != nil {
		return 0, fmt.Errorf("temp name: %w", err)
	}
	tmp := filepath.Join(s.dir, tmpDir, name.String())

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	n, err = io.Copy(f, readerFunc(func(p []byte) (int, error) {
		n, rerr := r.Read(p)
		if rerr != nil && rerr != io.EOF {
			rerr = &upstreamErr{err: rerr}
		}
		return n, rerr
	}))
	if err != nil {
		var up *upstreamErr
		if errors.As(err, &up) {
			return n, ir.NewUpstreamIOError(op, key, up.err)
		}
		return n, fmt.Errorf("write temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return n, fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return n, fmt.Errorf("rename into place: %w", err)
	}
	return n, nil
}

// readerFunc adapts a function to io.Reader. It also hides any WriterTo
// on the wrapped reader so every read passes through the function.
type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

// upstreamErr marks an error that came from the caller's reader rather
// than from the filesystem.
type upstreamErr struct{ err error }

func (e *upstreamErr) Error() string { return e.err.Error() }
func (e *upstreamErr) Unwrap() error { return e.err }

// GetStream opens the value stored under key for reading. File-backed
// values are streamed from disk; an inline blob under the same key is
// served from memory. A missing key is an ir NOT_FOUND error.
func (s *Store) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.filePath(key))
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("get stream %q: %w", key, err)
	}

	data, found, err := s.readEntry(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get stream %q: %w", key, err)
	}
	if !found {
		return nil, ir.NewNotFoundError("get stream", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// SetStream drains r into a file-backed value under key. The value is
// replaced only once r has been read to EOF; if r fails the prior value
// (if any) is kept and the error is UPSTREAM_IO.
func (s *Store) SetStream(ctx context.Context, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := s.writeFileAtomic("set stream", key, s.filePath(key), r)
	if err != nil {
		if ir.IsUpstreamIO(err) {
			return err
		}
		return fmt.Errorf("set stream %q: %w", key, err)
	}

	// A key holds one logical value: drop any inline value it shadowed.
	if err := s.deleteEntry(ctx, key); err != nil {
		return fmt.Errorf("set stream %q: %w", key, err)
	}
	s.logger.Debug("cache stream written", "key", key, "size", n)
	return nil
}

// HasLargeBlob reports whether a large blob is stored under key. Only
// chunk 0 is probed.
func (s *Store) HasLargeBlob(ctx context.Context, key string) (bool, error) {
	ok, err := fileExists(s.filePath(chunkKey(key, 0)))
	if err != nil {
		return false, fmt.Errorf("has large blob %q: %w", key, err)
	}
	return ok, nil
}

// GetLargeBlob reassembles the chunks of key in index order. Reading stops
// at the first missing chunk; callers confirm existence with HasLargeBlob
// first. A key with no chunks yields an empty slice.
func (s *Store) GetLargeBlob(ctx context.Context, key string) ([]byte, error) {
	var buf bytes.Buffer
	for i := 0; ; i++ {
		chunk, err := os.ReadFile(s.filePath(chunkKey(key, i)))
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("get large blob %q chunk %d: %w", key, i, err)
		}
		buf.Write(chunk)
	}
	out := buf.Bytes()
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

// SetLargeBlob stores data under key as one or more chunks of the
// configured chunk size. Data that fits one chunk is written as chunk 0
// with no splitting. Otherwise every chunk write is issued before any is
// awaited. If any chunk fails the blob is indeterminate and the error is
// PARTIAL_WRITE; the caller must rewrite the whole key.
func (s *Store) SetLargeBlob(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	size := s.cfg.chunkSize
	if len(data) <= size {
		if err := s.writeChunk(key, 0, data); err != nil {
			return ir.NewPartialWriteError("set large blob", key, err)
		}
		return s.trimChunks(key, 1)
	}

	// No context: once issued, chunk writes run to completion.
	var g errgroup.Group
	n := 0
	for off := 0; off < len(data); off += size {
		end := min(off+size, len(data))
		i, chunk := n, data[off:end]
		g.Go(func() error {
			return s.writeChunk(key, i, chunk)
		})
		n++
	}
	if err := g.Wait(); err != nil {
		return ir.NewPartialWriteError("set large blob", key, err)
	}

	s.logger.Debug("cache large blob written", "key", key, "size", len(data), "chunks", n)
	return s.trimChunks(key, n)
}

// SetLargeBlobFromReader is SetLargeBlob for content that arrives as a
// stream. Chunks are filled from r and written in order. A failing reader
// returns UPSTREAM_IO; either failure leaves the key indeterminate.
func (s *Store) SetLargeBlobFromReader(ctx context.Context, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := make([]byte, s.cfg.chunkSize)
	n := 0
	for {
		read, err := io.ReadFull(r, buf)
		last := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
		if err != nil && !last {
			return ir.NewUpstreamIOError("set large blob", key, err)
		}
		// An empty stream still produces chunk 0 so the blob exists.
		if read > 0 || n == 0 {
			if err := s.writeChunk(key, n, buf[:read]); err != nil {
				return ir.NewPartialWriteError("set large blob", key, err)
			}
			n++
		}
		if last {
			break
		}
	}
	return s.trimChunks(key, n)
}

// DeleteLargeBlob removes every chunk of key, starting from chunk 0 so the
// blob stops existing first.
func (s *Store) DeleteLargeBlob(ctx context.Context, key string) error {
	return s.trimChunks(key, 0)
}

func (s *Store) writeChunk(key string, i int, data []byte) error {
	ck := chunkKey(key, i)
	if _, err := s.writeFileAtomic("set large blob", ck, s.filePath(ck), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("chunk %d: %w", i, err)
	}
	return nil
}

// trimChunks removes chunks from index `from` upward until the first
// missing one. Used to drop stale tail chunks of a previous larger value.
func (s *Store) trimChunks(key string, from int) error {
	for i := from; ; i++ {
		err := os.Remove(s.filePath(chunkKey(key, i)))
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("remove chunk %d of %q: %w", i, key, err)
		}
	}
}
