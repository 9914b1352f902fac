package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

// JSONFile writes the snapshot as indented JSON. The file is written to a
// temporary sibling and renamed so readers never see a partial snapshot.
type JSONFile struct {
	Path string
}

func (j JSONFile) Name() string { return "json" }

func (j JSONFile) Export(_ context.Context, snap *models.Snapshot) error {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, snap); err != nil {
		return err
	}

	dir := filepath.Dir(j.Path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), j.Path); err != nil {
		return fmt.Errorf("rename to %s: %w", j.Path, err)
	}
	return nil
}

// WriteJSON encodes snap to w. Nil collections are written as empty arrays;
// snap itself is not modified.
func WriteJSON(w io.Writer, snap *models.Snapshot) error {
	out := *snap
	out.Normalize()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&out); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a snapshot previously written by JSONFile.
func ReadSnapshot(path string) (*models.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	return DecodeSnapshot(data)
}

// DecodeSnapshot decodes a snapshot JSON document and normalises it.
func DecodeSnapshot(data []byte) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	snap.Normalize()
	return &snap, nil
}
