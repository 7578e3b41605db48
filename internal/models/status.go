package models

import "time"

// StatusReason explains why the backend is not ready.
type StatusReason string

const (
	ReasonNone                     StatusReason = ""
	ReasonBackendUnreachable       StatusReason = "backend_unreachable"
	ReasonKnowledgeBaseUnavailable StatusReason = "knowledge_base_unavailable"
)

// SystemStatus is the UI-facing result of a health evaluation.
type SystemStatus struct {
	Ready      bool         `json:"ready"`
	ChunkCount int          `json:"chunk_count"`
	Reason     StatusReason `json:"reason,omitempty"`
	CheckedAt  time.Time    `json:"checked_at"`
}
