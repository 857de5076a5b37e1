package collector

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Repository persists captured emails and events.
type Repository interface {
	// SaveEmail returns ErrDuplicate when the project already holds the
	// address (compared case-insensitively).
	SaveEmail(ctx context.Context, email *Email) error
	SaveEvent(ctx context.Context, event *Event) error
	// FindEmail returns nil when projectID has no record of address.
	FindEmail(ctx context.Context, projectID, address string) (*Email, error)
	ListEmails(ctx context.Context, projectID string) ([]*Email, error)
	ListEvents(ctx context.Context, projectID string) ([]*Event, error)
}

type memoryRepository struct {
	mu     sync.RWMutex
	emails []*Email
	events []*Event
}

// NewMemoryRepository keeps records in process memory.
func NewMemoryRepository() Repository {
	return &memoryRepository{}
}

func (r *memoryRepository) SaveEmail(_ context.Context, email *Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.emails {
		if e.ProjectID == email.ProjectID && strings.EqualFold(e.Email, email.Email) {
			return ErrDuplicate
		}
	}
	cp := *email
	r.emails = append(r.emails, &cp)
	return nil
}

func (r *memoryRepository) SaveEvent(_ context.Context, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *event
	r.events = append(r.events, &cp)
	return nil
}

func (r *memoryRepository) FindEmail(_ context.Context, projectID, address string) (*Email, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.emails {
		if e.ProjectID == projectID && strings.EqualFold(e.Email, address) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memoryRepository) ListEmails(_ context.Context, projectID string) ([]*Email, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Email
	for _, e := range r.emails {
		if projectID == "" || e.ProjectID == projectID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) ListEvents(_ context.Context, projectID string) ([]*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Event
	for _, e := range r.events {
		if projectID == "" || e.ProjectID == projectID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
