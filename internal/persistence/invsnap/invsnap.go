// Package invsnap persists per-account unified-item snapshots for debugging
// and operator inspection. Writing a snapshot is a diagnostic convenience;
// evaluation correctness never depends on it.
package invsnap

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"skyvault.gg/internal/inventory"
)

type Snapshot struct {
	AccountID    string                    `json:"account_id"`
	TakenAt      time.Time                 `json:"taken_at"`
	Items        map[string]inventory.Item `json:"items"`
	AppliedSkins []string                  `json:"applied_skins,omitempty"`
	Roles        []string                  `json:"roles,omitempty"`
}

// Write stores the snapshot under dir, one file per account, overwriting any
// previous snapshot for that account. Returns the written path.
func Write(dir string, snap Snapshot) (string, error) {
	if snap.AccountID == "" {
		return "", fmt.Errorf("empty account id")
	}
	path := filepath.Join(dir, "inv", snap.AccountID+".json.zst")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return "", err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	if err := json.NewEncoder(bw).Encode(&snap); err != nil {
		return "", fmt.Errorf("snapshot encode: %w", err)
	}
	return path, nil
}

func Read(path string) (Snapshot, error) {
	var snap Snapshot
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

	if err := json.NewDecoder(bufio.NewReaderSize(dec, 64*1024)).Decode(&snap); err != nil {
		return snap, fmt.Errorf("snapshot decode: %w", err)
	}
	return snap, nil
}
