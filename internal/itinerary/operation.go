package itinerary

import (
	"encoding/json"
	"fmt"
	"time"
)

// OpKind is the mutation recorded by a sync operation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Valid reports whether k is a known operation kind.
func (k OpKind) Valid() bool {
	switch k {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Resource names the remote resource an operation targets.
type Resource string

const (
	ResourceItinerary Resource = "itinerary"
	ResourceProfile   Resource = "profile"
	ResourceSettings  Resource = "settings"
)

// Valid reports whether r is a known resource kind.
func (r Resource) Valid() bool {
	switch r {
	case ResourceItinerary, ResourceProfile, ResourceSettings:
		return true
	}
	return false
}

// Operation is a mutation waiting to be applied to the remote service.
type Operation struct {
	ID         string          `json:"id"`
	Kind       OpKind          `json:"type"`
	Resource   Resource        `json:"resource"`
	ResourceID string          `json:"resourceId,omitempty"`
	Payload    json.RawMessage `json:"data,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"lastError,omitempty"`
}

// Validate checks the fields a replay needs.
func (op Operation) Validate() error {
	if !op.Kind.Valid() {
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	if !op.Resource.Valid() {
		return fmt.Errorf("unknown resource %q", op.Resource)
	}
	if op.Resource == ResourceItinerary && op.Kind != OpCreate && op.ResourceID == "" {
		return fmt.Errorf("%s %s requires a resource id", op.Kind, op.Resource)
	}
	return nil
}

// NewRecordOp builds an itinerary operation carrying rec as its payload.
func NewRecordOp(kind OpKind, rec Record) (Operation, error) {
	op := Operation{Kind: kind, Resource: ResourceItinerary, ResourceID: rec.ID}
	if kind == OpDelete {
		return op, nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return Operation{}, fmt.Errorf("encode itinerary payload: %w", err)
	}
	op.Payload = payload
	return op, nil
}

// NewDeleteOp builds an itinerary delete operation.
func NewDeleteOp(id string) Operation {
	return Operation{Kind: OpDelete, Resource: ResourceItinerary, ResourceID: id}
}

// Record decodes the payload of an itinerary operation.
func (op Operation) Record() (Record, error) {
	if len(op.Payload) == 0 {
		return Record{}, fmt.Errorf("operation %s has no payload", op.ID)
	}
	var rec Record
	if err := json.Unmarshal(op.Payload, &rec); err != nil {
		return Record{}, fmt.Errorf("decode itinerary payload: %w", err)
	}
	return rec, nil
}

// String renders a compact label for logs and listings.
func (op Operation) String() string {
	if op.ResourceID == "" {
		return fmt.Sprintf("%s %s", op.Kind, op.Resource)
	}
	return fmt.Sprintf("%s %s/%s", op.Kind, op.Resource, op.ResourceID)
}
