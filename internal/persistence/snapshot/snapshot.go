// Package snapshot stores full run state as zstd(JSON header line + gob body).
// The header line lets tools identify a snapshot without decoding the body.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Round   int    `json:"round"`
}

// SnapshotV1 is the state after Header.Round completed rounds. Resuming from it
// continues with round Header.Round+1.
type SnapshotV1 struct {
	Header Header `json:"header"`

	// Arbitration parameters captured for resume.
	HistoryDepth        int      `json:"history_depth"`
	MaxChangePct        float64  `json:"max_change_pct"`
	AttackAction        string   `json:"attack_action"`
	TargetExemptActions []string `json:"target_exempt_actions"`
	UseFullIdentity     bool     `json:"use_full_identity"`
	CatalogDigest       string   `json:"catalog_digest,omitempty"`

	Agents    []AgentV1                 `json:"agents"`
	Relations map[string]map[string]int `json:"relations"`
	History   []StateRecordV1           `json:"history"`
	Mailbox   MailboxV1                 `json:"mailbox"`
}

type AgentV1 struct {
	Alias            string   `json:"alias"`
	Name             string   `json:"name"`
	Type             string   `json:"type"`
	Identity         string   `json:"identity"`
	Goal             string   `json:"goal"`
	Description      string   `json:"description,omitempty"`
	AvailableActions []string `json:"available_actions"`
	MilitaryPower    float64  `json:"military_power"`
	EconomicPower    float64  `json:"economic_power"`
}

type ActionV1 struct {
	Subject string `json:"subject"`
	Object  string `json:"object,omitempty"`
	Action  string `json:"action"`
}

type StateRecordV1 struct {
	Round            int                       `json:"round"`
	Actions          map[string][]ActionV1     `json:"actions"`
	MilitaryStrength map[string]float64        `json:"military_strength"`
	EconomicStrength map[string]float64        `json:"economic_strength"`
	Relations        map[string]map[string]int `json:"relations"`
}

type MessageV1 struct {
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	Target      string `json:"target,omitempty"`
}

// MailboxV1 holds committed mail only; pending mail never survives a round.
type MailboxV1 struct {
	Private map[string][]MessageV1 `json:"private"`
	Public  []MessageV1            `json:"public"`
}

// WriteSnapshot writes to a temporary file and renames it into place so a
// crash never leaves a truncated snapshot at path.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
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
	// Skip the header line; gob carries the header too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
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
