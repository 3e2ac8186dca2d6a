// Package transfer implements the Transfer Engine (spec.md §4.5): whole-body
// vs streaming file payloads with optional compression and encryption,
// verified by MD5 on receipt.
package transfer

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"

	"github.com/jelasin/gosync/internal/cryptoutil"
	"github.com/jelasin/gosync/internal/wire"
)

const (
	// WholeBodyThreshold is the size above which a file is streamed instead
	// of buffered, unless encryption forces whole-body mode.
	WholeBodyThreshold = 10 << 20 // 10 MiB
	// MaxChunkSize is the ceiling spec.md §4.5 puts on a single read/write
	// during the payload phase ("stream the payload in ≤ 64 KiB chunks").
	MaxChunkSize = 64 << 10 // 64 KiB
	// compressMinSize is the smallest raw size worth attempting to compress.
	compressMinSize = 1024
	// compressSavingsRatio is the maximum compressed/raw ratio to keep the
	// compressed form; above this the savings aren't worth the CPU.
	compressSavingsRatio = 0.90
)

// chunkSize is the configured copy buffer size, matching
// original_source/sync_tools/core/sync_core.py's socket recv chunk_size
// (config_manager.py's "sync.chunk_size", default 8192). It defaults to
// MaxChunkSize until SetChunkSize is called with a config value.
var chunkSize = MaxChunkSize

// SetChunkSize overrides the copy buffer size used by SendBody/Receive. A
// value outside (0, MaxChunkSize] is ignored, keeping the prior setting,
// since spec.md §4.5 pins 64 KiB as a hard ceiling, not just a default.
func SetChunkSize(n int) {
	if n <= 0 || n > MaxChunkSize {
		return
	}
	chunkSize = n
}

// Progress is an optional callback invoked as payload bytes are copied, so a
// caller (the CLI) can render a progress indicator. It is collaborator
// scope per spec.md §1; the Transfer Engine only exposes the hook.
type Progress func(sent, total int64)

// ErrHashMismatch is returned when a received file's MD5 doesn't match the
// declared hash. Receive has already unlinked any partial file by then.
var ErrHashMismatch = fmt.Errorf("transfer: hash mismatch")

// PrepareOptions controls how Prepare encodes a file before transmission.
type PrepareOptions struct {
	Key          []byte // nil disables encryption
	CompressPref bool   // caller-level toggle independent of the size heuristic
}

// Prepared is the result of encoding a file body for the wire: either a
// whole-body buffer (streaming=false) or a signal to stream the body
// directly from disk (streaming=true, Body is nil).
type Prepared struct {
	Meta wire.FileDataMeta
	Body []byte // nil when Streaming
}

// Prepare reads sourcePath fully or decides to stream it, applying
// compression and encryption per spec.md §4.5's mode-selection rules.
// wirePath is the forward-slash path recorded in the frame metadata.
func Prepare(sourcePath, wirePath string, version int64, opts PrepareOptions) (*Prepared, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("transfer: stat %s: %w", sourcePath, err)
	}
	size := info.Size()

	streaming := size > WholeBodyThreshold && len(opts.Key) == 0
	if streaming {
		f, err := os.Open(sourcePath)
		if err != nil {
			return nil, fmt.Errorf("transfer: open %s: %w", sourcePath, err)
		}
		h := md5.New()
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("transfer: hash %s: %w", sourcePath, err)
		}
		return &Prepared{
			Meta: wire.FileDataMeta{
				Path:         wirePath,
				Hash:         hex.EncodeToString(h.Sum(nil)),
				Size:         size,
				Version:      version,
				TransferSize: size,
				Streaming:    true,
				Modified:     info.ModTime(),
			},
		}, nil
	}

	raw, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("transfer: read %s: %w", sourcePath, err)
	}
	hash := md5Hex(raw)

	body := raw
	compressed := false
	if opts.CompressPref && len(raw) > compressMinSize {
		if c, ok := tryCompress(raw); ok {
			body = c
			compressed = true
		}
	}

	encrypted := false
	if len(opts.Key) > 0 {
		sealed, err := cryptoutil.Encrypt(opts.Key, body)
		if err != nil {
			return nil, fmt.Errorf("transfer: encrypt %s: %w", sourcePath, err)
		}
		body = sealed
		encrypted = true
	}

	return &Prepared{
		Meta: wire.FileDataMeta{
			Path:         wirePath,
			Size:         size,
			Hash:         hash,
			Version:      version,
			Encrypted:    encrypted,
			Compressed:   compressed,
			TransferSize: int64(len(body)),
			Streaming:    false,
			Modified:     info.ModTime(),
		},
		Body: body,
	}, nil
}

// tryCompress zlib-compresses raw and returns the compressed bytes only if
// they're smaller than compressSavingsRatio of the original size.
func tryCompress(raw []byte) ([]byte, bool) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		return nil, false
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}

	if float64(buf.Len()) < float64(len(raw))*compressSavingsRatio {
		return buf.Bytes(), true
	}
	return nil, false
}

// SendBody writes a Prepared payload's bytes to w in chunkSize pieces,
// either from the in-memory buffer or, for streaming transfers, directly
// from the source file.
func SendBody(w io.Writer, p *Prepared, sourcePath string, progress Progress) error {
	if !p.Meta.Streaming {
		return copyChunked(w, bytes.NewReader(p.Body), p.Meta.TransferSize, progress)
	}

	f, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("transfer: open %s for streaming: %w", sourcePath, err)
	}
	defer f.Close()
	return copyChunked(w, f, p.Meta.TransferSize, progress)
}

func copyChunked(w io.Writer, r io.Reader, total int64, progress Progress) error {
	buf := make([]byte, chunkSize)
	var sent int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fmt.Errorf("transfer: write chunk: %w", werr)
			}
			sent += int64(n)
			if progress != nil {
				progress(sent, total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("transfer: read chunk: %w", err)
		}
	}
	return nil
}

// Receive consumes exactly meta.TransferSize bytes from r, writing
// write-through to destPath if meta.Streaming, or buffering, decrypting,
// decompressing, then writing otherwise. It verifies the written file's MD5
// against meta.Hash and unlinks on mismatch.
func Receive(r io.Reader, meta wire.FileDataMeta, destPath string, key []byte, progress Progress) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("transfer: ensure parent dir: %w", err)
	}

	if meta.Streaming {
		return receiveStreaming(r, meta, destPath, progress)
	}
	return receiveBuffered(r, meta, destPath, key, progress)
}

func receiveStreaming(r io.Reader, meta wire.FileDataMeta, destPath string, progress Progress) error {
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("transfer: create %s: %w", destPath, err)
	}

	h := md5.New()
	tee := io.MultiWriter(f, h)
	if err := copyChunked(tee, io.LimitReader(r, meta.TransferSize), meta.TransferSize, progress); err != nil {
		f.Close()
		os.Remove(destPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("transfer: close %s: %w", destPath, err)
	}

	if hex.EncodeToString(h.Sum(nil)) != meta.Hash {
		os.Remove(destPath)
		return ErrHashMismatch
	}
	return nil
}

func receiveBuffered(r io.Reader, meta wire.FileDataMeta, destPath string, key []byte, progress Progress) error {
	var buf bytes.Buffer
	if err := copyChunked(&buf, io.LimitReader(r, meta.TransferSize), meta.TransferSize, progress); err != nil {
		return err
	}
	body := buf.Bytes()

	if meta.Encrypted {
		plain, err := cryptoutil.Decrypt(key, body)
		if err != nil {
			return fmt.Errorf("transfer: decrypt %s: %w", destPath, err)
		}
		body = plain
	}

	if meta.Compressed {
		plain, err := decompress(body)
		if err != nil {
			return fmt.Errorf("transfer: decompress %s: %w", destPath, err)
		}
		body = plain
	}

	if md5Hex(body) != meta.Hash {
		return ErrHashMismatch
	}

	if err := os.WriteFile(destPath, body, 0o644); err != nil {
		return fmt.Errorf("transfer: write %s: %w", destPath, err)
	}
	return nil
}

func decompress(compressed []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

