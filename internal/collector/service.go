package collector

import (
	"context"
	stderrors "errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
	"github.com/landingbeacon/landingbeacon-go/internal/platform/logging"
)

// ErrDuplicate is returned when a project already holds the address.
var ErrDuplicate = stderrors.New("duplicate")

// EmailInput is the body of an email submission.
type EmailInput struct {
	Email   string
	Context Context
}

// EventInput is the body of an event.
type EventInput struct {
	Type      string
	ContentID string
	Meta      map[string]any
	Context   Context
}

// Service validates and stores submissions.
type Service struct {
	repo  Repository
	now   func() time.Time
	newID func() string
	log   *logging.Logger
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(gen func() string) ServiceOption {
	return func(s *Service) { s.newID = gen }
}

func WithLogger(l *logging.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

// NewService wraps repo. A nil repo falls back to the in-memory repository.
func NewService(repo Repository, opts ...ServiceOption) *Service {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	s := &Service{
		repo:  repo,
		now:   time.Now,
		newID: uuid.NewString,
		log:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repository exposes the backing store for inspection.
func (s *Service) Repository() Repository {
	return s.repo
}

// SubmitEmail stores an address once per project and records the matching
// CONVERSION event.
func (s *Service) SubmitEmail(ctx context.Context, projectID string, in EmailInput) (*Email, error) {
	address := strings.TrimSpace(in.Email)
	if _, err := mail.ParseAddress(address); err != nil {
		return nil, errors.New(errors.KindValidation, "collector.submit_email", "invalid email")
	}

	existing, err := s.repo.FindEmail(ctx, projectID, address)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicate
	}

	email := &Email{
		ID:        "em_" + s.newID(),
		ProjectID: projectID,
		Email:     address,
		Context:   in.Context,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.SaveEmail(ctx, email); err != nil {
		return nil, err
	}

	conversion := &Event{
		ID:        "ev_" + s.newID(),
		ProjectID: projectID,
		Type:      EventConversion,
		Meta:      map[string]any{"emailId": email.ID},
		Context:   in.Context,
		CreatedAt: email.CreatedAt,
	}
	if err := s.repo.SaveEvent(ctx, conversion); err != nil {
		s.log.WarnTag(logging.TagHTTP, "failed to record conversion", map[string]any{
			"project": projectID,
			"error":   err.Error(),
		})
	}

	s.log.InfoTag(logging.TagHTTP, "email captured", map[string]any{"project": projectID, "id": email.ID})
	return email, nil
}

// TrackEvent stores a client-emitted event. CONVERSION is rejected: only the
// service creates it.
func (s *Service) TrackEvent(ctx context.Context, projectID string, in EventInput) (*Event, error) {
	switch in.Type {
	case EventView, EventCTA, EventSubmit, EventNavigate:
	case EventConversion:
		return nil, errors.New(errors.KindValidation, "collector.track_event", "CONVERSION events are created by the server")
	default:
		return nil, errors.New(errors.KindValidation, "collector.track_event", "unsupported event type")
	}

	event := &Event{
		ID:        "ev_" + s.newID(),
		ProjectID: projectID,
		Type:      in.Type,
		ContentID: in.ContentID,
		Meta:      in.Meta,
		Context:   in.Context,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.SaveEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}
