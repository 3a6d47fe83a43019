package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/attention.report/internal/attention/l2volumes"
)

// observersFile is the on-disk observer layout. A bare JSON array of
// volumes is accepted too.
type observersFile struct {
	Observers []l2volumes.Volume `json:"observers"`
}

const maxObserversSize = 1 << 20

func loadObservers(path string) ([]l2volumes.Volume, error) {
	if ext := filepath.Ext(path); ext != ".json" {
		return nil, fmt.Errorf("observers file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat observers file: %w", err)
	}
	if info.Size() > maxObserversSize {
		return nil, fmt.Errorf("observers file too large: %d bytes (max %d)", info.Size(), maxObserversSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read observers file: %w", err)
	}
	return parseObservers(data)
}

func parseObservers(data []byte) ([]l2volumes.Volume, error) {
	var vols []l2volumes.Volume
	if err := json.Unmarshal(data, &vols); err != nil {
		var f observersFile
		if err2 := json.Unmarshal(data, &f); err2 != nil {
			return nil, fmt.Errorf("failed to parse observers JSON: %w", err2)
		}
		vols = f.Observers
	}
	for _, v := range vols {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("observer %q: %w", v.ID, err)
		}
	}
	return vols, nil
}
