package couchbase

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// IngestionStatusKey is the document key for ingestion status
const IngestionStatusKey = "_system/ingestion_status"

// IngestionStatus records the progress of the last FHIR ingestion
type IngestionStatus struct {
	Ready         bool      `json:"ready"`
	StartedAt     time.Time `json:"startedAt"`
	CompletedAt   time.Time `json:"completedAt,omitempty"`
	PatientsTotal int       `json:"patientsTotal"`
	Message       string    `json:"message"`
}

// GetIngestionStatus returns the stored status, or a not-ready status when
// no ingestion has ever run.
func (c *Client) GetIngestionStatus(ctx context.Context) (*IngestionStatus, error) {
	var status IngestionStatus
	err := c.docManager.GetDocument(ctx, "", IngestionStatusKey, &status)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &IngestionStatus{Ready: false, Message: "no ingestion has run"}, nil
		}
		return nil, fmt.Errorf("failed to get ingestion status: %w", err)
	}
	return &status, nil
}

// MarkIngestionStarted resets the status at the start of a run
func (c *Client) MarkIngestionStarted(ctx context.Context) error {
	status := IngestionStatus{
		Ready:     false,
		StartedAt: time.Now().UTC(),
		Message:   "FHIR ingestion started",
	}
	return c.docManager.UpsertDocument(ctx, "", IngestionStatusKey, status)
}

// MarkIngestionComplete marks the repository ready for evaluation
func (c *Client) MarkIngestionComplete(ctx context.Context, startedAt time.Time, patients int) error {
	status := IngestionStatus{
		Ready:         true,
		StartedAt:     startedAt,
		CompletedAt:   time.Now().UTC(),
		PatientsTotal: patients,
		Message:       "FHIR ingestion completed successfully",
	}
	return c.docManager.UpsertDocument(ctx, "", IngestionStatusKey, status)
}
