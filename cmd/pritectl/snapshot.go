package main

import (
	"encoding/json"
	"fmt"
	"os"

	"pritecards/internal/dedup"
)

func readSnapshot(path string) (*dedup.Workflow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s dedup.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return dedup.RestoreWorkflow(s)
}
