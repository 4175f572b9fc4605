package schemas

import (
	"context"
	"encoding/json"
)

// -- LLM Client Schemas --

// ModelTier selects a model by its cost/capability trade-off.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Cheap triage model.
	TierPowerful ModelTier = "powerful" // Costly deep-analysis model.
)

// GenerationOptions controls sampling and output format.
type GenerationOptions struct {
	Temperature     float32 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
	TopP            float32 `json:"top_p"`
	TopK            int     `json:"top_k"`
}

// GenerationRequest is a complete request to a model tier. ResponseSchema, when
// set, constrains the model to structured JSON output.
type GenerationRequest struct {
	SystemPrompt   string            `json:"system_prompt"`
	UserPrompt     string            `json:"user_prompt"`
	Tier           ModelTier         `json:"tier"`
	Options        GenerationOptions `json:"options"`
	ResponseSchema *JSONSchema       `json:"response_schema,omitempty"`
}

// LLMClient abstracts a model provider.
type LLMClient interface {
	// Generate returns the raw text completion for req. Implementations retry
	// transient failures internally.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	Close() error
}

// JSONSchema is the subset of JSON Schema used to describe model responses.
type JSONSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
}

// MarshalJSON lets a schema be passed where a json.Marshaler is expected.
func (s *JSONSchema) MarshalJSON() ([]byte, error) {
	type plain JSONSchema
	return json.Marshal((*plain)(s))
}

// -- Core Collaborators --

// RepositorySource obtains and enumerates working copies.
type RepositorySource interface {
	Clone(ctx context.Context, repoURL string) (string, error)
	ListFiles(repoDir string) ([]RepoFile, error)
	ReadFile(fullPath string) (string, error)
	Cleanup(repoDir string) error
}

// FindingStore persists repositories, scan lifecycle and findings.
type FindingStore interface {
	EnsureRepository(ctx context.Context, name, url string) (int64, error)
	CreateScan(ctx context.Context, scanID string, repoID int64) error
	PersistFindings(ctx context.Context, findings []Finding) (int, error)
	UpdateScanStatus(ctx context.Context, update ScanStatusUpdate) error
}

// ScanStatusUpdate is a scan-status transition.
type ScanStatusUpdate struct {
	ScanID        string
	Status        ScanStatus
	FilesScanned  int
	FindingsCount int
	ErrorMessage  string
}
