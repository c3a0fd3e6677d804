// Package api defines the types shared between tool providers and the
// gateway surface: tool definitions with their JSON Schema parameters,
// and the identifiers used to correlate calls with results.
package api

import "encoding/json"

// ToolDefinition describes a single tool as advertised to the hosting
// agent framework.
type ToolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}
