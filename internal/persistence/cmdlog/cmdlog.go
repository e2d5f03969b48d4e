// Package cmdlog persists a session's command stream: one header line followed
// by one JSON line per tick, zstd compressed. A log plus the level it names is
// enough to replay the session.
package cmdlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"tactica.ai/internal/sim/command"
	"tactica.ai/internal/sim/level"
	"tactica.ai/internal/sim/simerr"
)

const Version = 1

type Header struct {
	Version   int          `json:"version"`
	Session   string       `json:"session"`
	Seed      int32        `json:"seed"`
	StepMs    int          `json:"step_ms"`
	StartedAt string       `json:"started_at,omitempty"`
	Level     *level.Level `json:"level"`
	Map       *level.Map   `json:"map,omitempty"`
}

// Entry is one simulated tick. Digest is the state digest after the tick;
// Fired lists the rules that fired during it, in order.
type Entry struct {
	Tick     uint64            `json:"tick"`
	Commands []command.Command `json:"commands,omitempty"`
	Fired    []string          `json:"fired,omitempty"`
	Digest   string            `json:"digest"`
}

// Path is the log file for a session under dir.
func Path(dir, session string) string {
	return filepath.Join(dir, session+".jsonl.zst")
}

// Writer appends JSON lines to a zstd stream. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// Create truncates path and writes h as the first line.
func Create(path string, h Header) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, simerr.Wrap(simerr.CodeIO, "create log dir", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, simerr.Wrap(simerr.CodeIO, "create log", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, simerr.Wrap(simerr.CodeIO, "zstd writer", err)
	}
	w := &Writer{f: f, enc: enc, w: bufio.NewWriterSize(enc, 128*1024)}
	if h.Version == 0 {
		h.Version = Version
	}
	if err := w.write(h); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) WriteTick(e Entry) error { return w.write(e) }

func (w *Writer) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return simerr.New(simerr.CodeIO, "write to closed log")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return simerr.Wrap(simerr.CodeIO, "write log", err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return simerr.Wrap(simerr.CodeIO, "write log", err)
	}
	return w.w.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

// Reader reads a log written by Writer.
type Reader struct {
	f      *os.File
	dec    *zstd.Decoder
	sc     *bufio.Scanner
	header Header
	last   uint64
	seen   bool
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, simerr.Wrap(simerr.CodeIO, "open log", err)
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, simerr.Wrap(simerr.CodeIO, "zstd reader", err)
	}
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	r := &Reader{f: f, dec: dec, sc: sc}
	if !sc.Scan() {
		_ = r.Close()
		if err := sc.Err(); err != nil {
			return nil, simerr.Wrap(simerr.CodeIO, "read header", err)
		}
		return nil, simerr.New(simerr.CodeIO, "empty log")
	}
	if err := json.Unmarshal(sc.Bytes(), &r.header); err != nil {
		_ = r.Close()
		return nil, simerr.Wrap(simerr.CodeIO, "decode header", err)
	}
	if r.header.Version != Version {
		_ = r.Close()
		return nil, simerr.Newf(simerr.CodeIO, "unsupported log version %d", r.header.Version)
	}
	return r, nil
}

func (r *Reader) Header() Header { return r.header }

// Next returns the next tick entry, or io.EOF after the last one. Entries
// must be strictly ascending by tick.
func (r *Reader) Next() (Entry, error) {
	var e Entry
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return e, simerr.Wrap(simerr.CodeIO, "read log", err)
		}
		return e, io.EOF
	}
	if err := json.Unmarshal(r.sc.Bytes(), &e); err != nil {
		return e, simerr.Wrap(simerr.CodeIO, "decode entry", err)
	}
	if r.seen && e.Tick <= r.last {
		return e, simerr.Newf(simerr.CodeIO, "log out of order: tick %d after %d", e.Tick, r.last)
	}
	r.last, r.seen = e.Tick, true
	return e, nil
}

func (r *Reader) Close() error {
	r.dec.Close()
	return r.f.Close()
}

// ReadAll loads a whole log.
func ReadAll(path string) (Header, []Entry, error) {
	r, err := Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer r.Close()
	var out []Entry
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return r.Header(), out, nil
		}
		if err != nil {
			return r.Header(), out, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		out = append(out, e)
	}
}
