package models

import "encoding/json"

// ChangeKeys identifies the mutated row.
type ChangeKeys struct {
	TenantID string `json:"tenantId"`
	Path     string `json:"path"`
}

// ChangeRecord is one raw mutation record from the storage change feed. A
// record with no NewImage represents a deletion and plans no work.
type ChangeRecord struct {
	Keys     ChangeKeys      `json:"keys"`
	NewImage json.RawMessage `json:"newImage,omitempty"`
}
