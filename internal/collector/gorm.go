package collector

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
)

// EmailModel is the gorm row for an Email.
type EmailModel struct {
	ID         string `gorm:"primaryKey;size:64"`
	ProjectID  string `gorm:"uniqueIndex:idx_email_project_address;size:128;not null"`
	Address    string `gorm:"uniqueIndex:idx_email_project_address;size:320;not null"`
	DeviceID   string `gorm:"size:128"`
	DeviceType *string
	Referrer   *string
	UserAgent  *string
	CreatedAt  time.Time `gorm:"index"`
}

func (EmailModel) TableName() string { return "collector_emails" }

// EventModel is the gorm row for an Event. Meta is stored as a JSON document.
type EventModel struct {
	ID         string `gorm:"primaryKey;size:64"`
	ProjectID  string `gorm:"index;size:128;not null"`
	Type       string `gorm:"size:32;not null"`
	ContentID  string `gorm:"size:256"`
	Meta       string `gorm:"type:text"`
	DeviceID   string `gorm:"size:128"`
	DeviceType *string
	Referrer   *string
	UserAgent  *string
	CreatedAt  time.Time `gorm:"index"`
}

func (EventModel) TableName() string { return "collector_events" }

type gormRepository struct {
	db *gorm.DB
}

// NewGormRepository migrates the collector tables and returns a repository
// backed by db.
func NewGormRepository(db *gorm.DB) (Repository, error) {
	if err := db.AutoMigrate(&EmailModel{}, &EventModel{}); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "collector.migrate", "failed to migrate collector tables", err)
	}
	return &gormRepository{db: db}, nil
}

func (r *gormRepository) SaveEmail(ctx context.Context, email *Email) error {
	model := EmailModel{
		ID:         email.ID,
		ProjectID:  email.ProjectID,
		Address:    strings.ToLower(email.Email),
		DeviceID:   email.Context.DeviceID,
		DeviceType: email.Context.DeviceType,
		Referrer:   email.Context.Referrer,
		UserAgent:  email.Context.UserAgent,
		CreatedAt:  email.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return errors.Wrap(errors.KindStorage, "collector.save_email", "failed to save email", err)
	}
	return nil
}

func (r *gormRepository) SaveEvent(ctx context.Context, event *Event) error {
	model := EventModel{
		ID:         event.ID,
		ProjectID:  event.ProjectID,
		Type:       event.Type,
		ContentID:  event.ContentID,
		DeviceID:   event.Context.DeviceID,
		DeviceType: event.Context.DeviceType,
		Referrer:   event.Context.Referrer,
		UserAgent:  event.Context.UserAgent,
		CreatedAt:  event.CreatedAt,
	}
	if len(event.Meta) > 0 {
		meta, err := sonic.MarshalString(event.Meta)
		if err != nil {
			return errors.Wrap(errors.KindValidation, "collector.save_event", "failed to encode meta", err)
		}
		model.Meta = meta
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "collector.save_event", "failed to save event", err)
	}
	return nil
}

func (r *gormRepository) FindEmail(ctx context.Context, projectID, address string) (*Email, error) {
	var model EmailModel
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND address = ?", projectID, strings.ToLower(address)).
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(errors.KindStorage, "collector.find_email", "failed to find email", err)
	}
	return emailFromModel(&model), nil
}

func (r *gormRepository) ListEmails(ctx context.Context, projectID string) ([]*Email, error) {
	var models []EmailModel
	q := r.db.WithContext(ctx).Order("created_at")
	if projectID != "" {
		q = q.Where("project_id = ?", projectID)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "collector.list_emails", "failed to list emails", err)
	}
	out := make([]*Email, len(models))
	for i := range models {
		out[i] = emailFromModel(&models[i])
	}
	return out, nil
}

func (r *gormRepository) ListEvents(ctx context.Context, projectID string) ([]*Event, error) {
	var models []EventModel
	q := r.db.WithContext(ctx).Order("created_at")
	if projectID != "" {
		q = q.Where("project_id = ?", projectID)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "collector.list_events", "failed to list events", err)
	}
	out := make([]*Event, 0, len(models))
	for i := range models {
		event, err := eventFromModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, nil
}

func emailFromModel(m *EmailModel) *Email {
	return &Email{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		Email:     m.Address,
		Context: Context{
			DeviceID:   m.DeviceID,
			DeviceType: m.DeviceType,
			Referrer:   m.Referrer,
			UserAgent:  m.UserAgent,
		},
		CreatedAt: m.CreatedAt,
	}
}

func eventFromModel(m *EventModel) (*Event, error) {
	event := &Event{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		Type:      m.Type,
		ContentID: m.ContentID,
		Context: Context{
			DeviceID:   m.DeviceID,
			DeviceType: m.DeviceType,
			Referrer:   m.Referrer,
			UserAgent:  m.UserAgent,
		},
		CreatedAt: m.CreatedAt,
	}
	if m.Meta != "" {
		if err := sonic.UnmarshalString(m.Meta, &event.Meta); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "collector.list_events", "stored meta is malformed", err)
		}
	}
	return event, nil
}

// isUniqueViolation matches both the translated gorm error and the raw
// sqlite message, since handles may be opened without TranslateError.
func isUniqueViolation(err error) bool {
	return stderrors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}
