package strategy

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidewave/tidewave/internal/indicators"
)

// Registry is the in-memory strategy store. Every update bumps the patch
// component of the version and appends to the version history; clones start
// over at 1.0.0 as drafts.
type Registry struct {
	mu         sync.RWMutex
	indicators *indicators.Registry
	strategies map[string]*Schema
	versions   map[string][]VersionRecord
	now        func() time.Time
}

// NewRegistry creates an empty strategy registry validating against the
// given indicator registry.
func NewRegistry(ind *indicators.Registry) *Registry {
	return &Registry{
		indicators: ind,
		strategies: make(map[string]*Schema),
		versions:   make(map[string][]VersionRecord),
		now:        time.Now,
	}
}

// Create validates and stores a new strategy. Missing id, version and status
// get defaults.
func (r *Registry) Create(s Schema) (*Schema, error) {
	if err := Validate(&s, r.indicators); err != nil {
		return nil, fmt.Errorf("invalid strategy: %w", err)
	}

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Version == "" {
		s.Version = "1.0.0"
	}
	if s.Status == "" {
		s.Status = StatusDraft
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[s.ID]; exists {
		return nil, fmt.Errorf("strategy %q already exists", s.ID)
	}
	stored := s
	r.strategies[s.ID] = &stored
	r.versions[s.ID] = append(r.versions[s.ID], VersionRecord{
		Version:   s.Version,
		Schema:    s,
		CreatedAt: r.now(),
	})
	return &stored, nil
}

// Get returns the current schema for an id.
func (r *Registry) Get(id string) (*Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy %q not found", id)
	}
	copied := *s
	return &copied, nil
}

// List returns all stored strategies.
func (r *Registry) List() []*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Schema, 0, len(r.strategies))
	for _, s := range r.strategies {
		copied := *s
		out = append(out, &copied)
	}
	return out
}

// Update validates the new schema, bumps the patch version and appends a
// version record.
func (r *Registry) Update(id string, s Schema) (*Schema, error) {
	if err := Validate(&s, r.indicators); err != nil {
		return nil, fmt.Errorf("invalid strategy: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy %q not found", id)
	}

	s.ID = id
	s.Version = bumpPatch(current.Version)
	stored := s
	r.strategies[id] = &stored
	r.versions[id] = append(r.versions[id], VersionRecord{
		Version:   s.Version,
		Schema:    s,
		CreatedAt: r.now(),
	})
	return &stored, nil
}

// Delete removes a strategy and its history.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.strategies[id]; !ok {
		return fmt.Errorf("strategy %q not found", id)
	}
	delete(r.strategies, id)
	delete(r.versions, id)
	return nil
}

// Clone copies a strategy under a fresh id with the name suffixed "(Copy)",
// the version reset to 1.0.0 and the status reset to draft.
func (r *Registry) Clone(id string) (*Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy %q not found", id)
	}

	clone := *src
	clone.ID = uuid.New().String()
	clone.Name = src.Name + " (Copy)"
	clone.Version = "1.0.0"
	clone.Status = StatusDraft

	stored := clone
	r.strategies[clone.ID] = &stored
	r.versions[clone.ID] = []VersionRecord{{
		Version:   clone.Version,
		Schema:    clone,
		CreatedAt: r.now(),
	}}
	return &stored, nil
}

// Versions returns the version history for a strategy, oldest first.
func (r *Registry) Versions(id string) ([]VersionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	records, ok := r.versions[id]
	if !ok {
		return nil, fmt.Errorf("strategy %q not found", id)
	}
	out := make([]VersionRecord, len(records))
	copy(out, records)
	return out, nil
}

// bumpPatch increments the PATCH component of a MAJOR.MINOR.PATCH version.
// Malformed versions restart at 1.0.1.
func bumpPatch(version string) string {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return "1.0.1"
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return "1.0.1"
	}
	return fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1)
}
