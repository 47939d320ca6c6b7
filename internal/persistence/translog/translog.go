// Package translog records a session's accepted commands as a
// zstd-compressed JSONL transcript. The transcript plus the tuning that
// produced it is enough to re-derive the whole session: world generation
// is deterministic, so replaying the commands into a fresh engine must
// reproduce the recorded state digests.
package translog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"geocache.world/internal/protocol"
)

// Entry is one accepted command and the state digest after applying it.
type Entry struct {
	Seq     int                 `json:"seq"`
	Command protocol.CommandMsg `json:"command"`
	Digest  string              `json:"digest"`
}

type Writer struct {
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
	seq int
}

func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, enc: enc, w: bufio.NewWriter(enc)}, nil
}

// Append records one command. The assigned sequence number overwrites
// whatever the caller left in Seq.
func (w *Writer) Append(e Entry) error {
	e.Seq = w.seq
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.seq++
	return nil
}

func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		_ = w.enc.Close()
		_ = w.f.Close()
		return err
	}
	if err := w.enc.Close(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

// ReadAll decodes a whole transcript and checks sequence continuity.
func ReadAll(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var entries []Entry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("transcript line %d: %w", len(entries), err)
		}
		if e.Seq != len(entries) {
			return nil, fmt.Errorf("transcript gap: entry %d has seq %d", len(entries), e.Seq)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
