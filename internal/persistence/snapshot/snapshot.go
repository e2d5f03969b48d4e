package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"tactica.ai/internal/sim/trigger"
	"tactica.ai/internal/sim/world"
)

type Header struct {
	Version int    `json:"version"`
	Session string `json:"session"`
	Level   string `json:"level"`
	Tick    uint64 `json:"tick"`
	Digest  string `json:"digest"`
}

// SnapshotV1 is a point-in-time copy of a session for inspection and audit.
// Pending scheduled tasks are listed but not restorable; the command log is
// the source of truth for resuming.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed      int32  `json:"seed"`
	SeedDraws uint64 `json:"seed_draws"`

	World world.State `json:"world"`

	LevelState   string                   `json:"level_state"`
	RunningTicks uint64                   `json:"running_ticks"`
	Vars         map[string]trigger.Value `json:"vars"`
	FiredOnce    []string                 `json:"fired_once,omitempty"`
	Pending      []trigger.PendingTask    `json:"pending,omitempty"`
	Held         []world.Event            `json:"held,omitempty"`
	EndReason    string                   `json:"end_reason,omitempty"`
}

func Path(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.snap.zst", tick))
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

// ReadHeader reads only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// header line is repeated inside the gob body
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
