// Package tracker writes a sequence's progress status document to an
// external store, keyed by `aws-orchestrate/<stage>/<correlationId>` and
// overwritten on every progression.
package tracker

import (
	"context"
	"fmt"

	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/jsoncodec"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/secrets"
)

// Status is the payload written at each progression.
type Status struct {
	CorrelationID string `json:"correlationId"`
	Total         int    `json:"total"`
	Current       int    `json:"current"`
	CurrentFn     string `json:"currentFn"`
	OriginFn      string `json:"originFn,omitempty"`
	Status        string `json:"status"` // "running" | "success" | "error"
	Data          any    `json:"data,omitempty"`
	Error         any    `json:"error,omitempty"`
}

const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is the tracker handler's input.
type Request struct {
	Status                 Status `json:"status"`
	FirebaseSecretLocation string `json:"firebaseSecretLocation"`
}

// Store persists one status document per correlation id, keyed by stage.
type Store interface {
	Put(ctx context.Context, stage, correlationID string, status Status) error
}

// DocumentPath builds the store key convention used by every Store
// implementation.
func DocumentPath(stage, correlationID string) string {
	return fmt.Sprintf("aws-orchestrate/%s/%s", stage, correlationID)
}

// Handler is the distinguished tracker function: it fetches service
// credentials, connects to the status store (already bound into it at
// construction), and writes the status document, echoing the status
// back.
type Handler struct {
	store       Store
	stage       string
	secretFetch secrets.Fetcher
}

// NewHandler builds a tracker bound to stage and store. secretFetch may
// be nil if the store implementation does not need fetched credentials
// (e.g. it already authenticates via its own client construction).
func NewHandler(stage string, store Store, secretFetch secrets.Fetcher) (*Handler, error) {
	if stage == "" {
		return nil, fmt.Errorf("tracker: stage is required")
	}
	if store == nil {
		return nil, fmt.Errorf("tracker: store is required")
	}
	return &Handler{store: store, stage: stage, secretFetch: secretFetch}, nil
}

// Handle fetches service credentials at req.FirebaseSecretLocation (or
// the default path), writes req.Status, and echoes it back.
func (h *Handler) Handle(ctx context.Context, req Request) (Status, error) {
	secretPath := req.FirebaseSecretLocation
	if secretPath == "" {
		secretPath = secrets.DefaultServiceAccountPath
	}

	if h.secretFetch != nil {
		if _, err := h.secretFetch(ctx, secretPath); err != nil {
			return Status{}, fmt.Errorf("tracker: fetch service credentials at %q: %w", secretPath, err)
		}
	}

	if err := h.store.Put(ctx, h.stage, req.Status.CorrelationID, req.Status); err != nil {
		return Status{}, fmt.Errorf("tracker: write status document: %w", err)
	}
	return req.Status, nil
}

func encodeStatus(status Status) ([]byte, error) {
	return jsoncodec.Marshal(status)
}
