package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dwgbatch/dwgbatch/internal/script"
)

// workflowItem is the JSON wire shape of one script item in an exported
// workflow file. Kept separate from script.Item so the file format
// doesn't move when internal types do.
type workflowItem struct {
	Path   string `json:"path"`
	Type   string `json:"type"`
	Invoke string `json:"invoke"`
	Note   string `json:"note"`
}

// ExportWorkflow writes a workflow's items as a JSON array, the format
// shared with the desktop front-end's template export.
func ExportWorkflow(path string, items []script.Item) error {
	payload := make([]workflowItem, 0, len(items))

	for _, item := range items {
		payload = append(payload, workflowItem{
			Path:   item.Path,
			Type:   string(item.Type),
			Invoke: item.Invoke,
			Note:   item.Note,
		})
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode workflow: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write workflow: %w", err)
	}

	return nil
}

// ImportWorkflow reads a JSON workflow file back into script items.
func ImportWorkflow(path string) ([]script.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}

	var payload []workflowItem

	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse workflow: %w", err)
	}

	items := make([]script.Item, 0, len(payload))

	for _, entry := range payload {
		typ, err := script.ParseType(entry.Type)
		if err != nil {
			return nil, err
		}

		items = append(items, script.Item{
			Path:   entry.Path,
			Type:   typ,
			Invoke: entry.Invoke,
			Note:   entry.Note,
		})
	}

	return items, nil
}
