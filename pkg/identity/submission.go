package identity

import (
	"context"
	"time"

	"github.com/bytedance/sonic"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
	"github.com/landingbeacon/landingbeacon-go/internal/platform/logging"
)

// isoMillis matches the ISO-8601 form browsers produce for timestamps.
const isoMillis = "2006-01-02T15:04:05.000Z"

// SubmissionStatus is the locally cached "already submitted" marker.
type SubmissionStatus struct {
	Submitted   bool   `json:"submitted"`
	Email       string `json:"email,omitempty"`
	SubmittedAt string `json:"submittedAt,omitempty"`
}

// SubmissionLookup is the explicit outcome of reading a submission record.
type SubmissionLookup struct {
	Status Status
	Record SubmissionStatus
	Err    error
}

// LoadSubmission reads projectID's record. Status is StatusOK, StatusMissing,
// StatusCorrupt or StatusUnavailable.
func (s *Store) LoadSubmission(ctx context.Context, projectID string) SubmissionLookup {
	if s.kv == nil {
		return SubmissionLookup{Status: StatusUnavailable}
	}
	raw, found, err := s.kv.Get(ctx, s.SubmissionKey(projectID))
	if err != nil {
		return SubmissionLookup{
			Status: StatusUnavailable,
			Err:    errors.Wrap(errors.KindStorage, "identity.load_submission", "read submission record", err),
		}
	}
	if !found {
		return SubmissionLookup{Status: StatusMissing}
	}
	var rec SubmissionStatus
	if err := sonic.UnmarshalString(raw, &rec); err != nil {
		return SubmissionLookup{
			Status: StatusCorrupt,
			Err:    errors.Wrap(errors.KindIdentity, "identity.load_submission", "submission record is malformed", err),
		}
	}
	return SubmissionLookup{Status: StatusOK, Record: rec}
}

// GetSubmissionStatus returns the cached record, defaulting to
// {Submitted: false} when it is missing, corrupt or unreadable.
func (s *Store) GetSubmissionStatus(ctx context.Context, projectID string) SubmissionStatus {
	lookup := s.LoadSubmission(ctx, projectID)
	switch lookup.Status {
	case StatusOK:
		return lookup.Record
	case StatusCorrupt, StatusUnavailable:
		if lookup.Err != nil {
			s.log.DebugTag(logging.TagIdentity, "submission status defaulted", map[string]any{
				"project": projectID,
				"status":  lookup.Status.String(),
				"error":   lookup.Err.Error(),
			})
		}
	}
	return SubmissionStatus{Submitted: false}
}

// RecordSubmission marks projectID as submitted with email, overwriting any
// previous record. Storage failures are logged and otherwise ignored; the
// returned record is what was (or would have been) written.
func (s *Store) RecordSubmission(ctx context.Context, projectID, email string) SubmissionStatus {
	rec := SubmissionStatus{
		Submitted:   true,
		Email:       email,
		SubmittedAt: s.now().UTC().Format(isoMillis),
	}
	if s.kv == nil {
		return rec
	}
	raw, err := sonic.MarshalString(rec)
	if err == nil {
		err = s.kv.Set(ctx, s.SubmissionKey(projectID), raw)
	}
	if err != nil {
		s.log.WarnTag(logging.TagIdentity, "failed to persist submission record", map[string]any{
			"project": projectID,
			"error":   err.Error(),
		})
	}
	return rec
}

// SubmittedAtTime parses the record timestamp. ok is false when absent or invalid.
func (r SubmissionStatus) SubmittedAtTime() (time.Time, bool) {
	if r.SubmittedAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, r.SubmittedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
