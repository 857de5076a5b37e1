package identity

import (
	"context"

	"github.com/bytedance/sonic"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
	"github.com/landingbeacon/landingbeacon-go/internal/platform/logging"
)

const maxLegacyIDLen = 128

type deviceRecord struct {
	DeviceID  string `json:"deviceId"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

// Resolution is the explicit outcome of a device identity read.
type Resolution struct {
	ID     string
	Status Status
	// Previous holds the discarded identifier (expired) or raw value (corrupt).
	Previous string
	Err      error
}

// GetOrCreateDeviceID returns the device identifier, creating and persisting
// one when needed. ok is false when storage is unavailable; it never fails
// otherwise.
func (s *Store) GetOrCreateDeviceID(ctx context.Context) (string, bool) {
	r := s.Resolve(ctx)
	return r.ID, r.Status != StatusUnavailable
}

// Resolve is GetOrCreateDeviceID with the storage outcome kept visible.
func (s *Store) Resolve(ctx context.Context) Resolution {
	if s.kv == nil {
		return Resolution{Status: StatusUnavailable}
	}

	raw, found, err := s.kv.Get(ctx, s.deviceKey)
	if err != nil {
		err = errors.Wrap(errors.KindStorage, "identity.resolve", "read device record", err)
		s.log.WarnTag(logging.TagIdentity, "storage unavailable, continuing without device id", map[string]any{"error": err.Error()})
		return Resolution{Status: StatusUnavailable, Err: err}
	}

	outcome := Resolution{Status: StatusCreated}
	if found {
		rec, perr := decodeDeviceRecord(raw)
		switch {
		case perr == nil && s.ttl > 0 && rec.ExpiresAt == 0:
			return s.adopt(ctx, rec.DeviceID, "stamped permanent device id with an expiry")
		case perr == nil && !s.expired(rec):
			return Resolution{ID: rec.DeviceID, Status: StatusOK}
		case perr == nil:
			outcome = Resolution{Status: StatusExpired, Previous: rec.DeviceID}
			s.log.DebugTag(logging.TagIdentity, "device id expired, rotating")
		case s.adoptLegacy && isLegacyID(raw):
			return s.adopt(ctx, raw, "migrated legacy device id to record format")
		default:
			outcome = Resolution{Status: StatusCorrupt, Previous: raw, Err: perr}
			s.log.WarnTag(logging.TagIdentity, "stored device record is malformed, regenerating", map[string]any{"key": s.deviceKey})
		}
		if err := s.kv.Remove(ctx, s.deviceKey); err != nil {
			s.log.WarnTag(logging.TagIdentity, "failed to discard device record", map[string]any{"error": err.Error()})
		}
	}

	id := s.prefix + s.newID()
	if err := s.write(ctx, id); err != nil {
		s.log.WarnTag(logging.TagIdentity, "storage unavailable, continuing without device id", map[string]any{"error": err.Error()})
		return Resolution{Status: StatusUnavailable, Previous: outcome.Previous, Err: err}
	}
	outcome.ID = id
	return outcome
}

// adopt rewrites an existing identifier under the current policy.
func (s *Store) adopt(ctx context.Context, legacyID, msg string) Resolution {
	if err := s.write(ctx, legacyID); err != nil {
		s.log.WarnTag(logging.TagIdentity, "failed to migrate legacy device id", map[string]any{"error": err.Error()})
		return Resolution{Status: StatusUnavailable, Previous: legacyID, Err: err}
	}
	s.log.InfoTag(logging.TagIdentity, msg)
	return Resolution{ID: legacyID, Status: StatusAdopted}
}

func (s *Store) write(ctx context.Context, id string) error {
	rec := deviceRecord{DeviceID: id}
	if s.ttl > 0 {
		rec.ExpiresAt = s.now().Add(s.ttl).UnixMilli()
	}
	raw, err := sonic.MarshalString(rec)
	if err != nil {
		return errors.Wrap(errors.KindIdentity, "identity.write", "encode device record", err)
	}
	if err := s.kv.Set(ctx, s.deviceKey, raw); err != nil {
		return errors.Wrap(errors.KindStorage, "identity.write", "persist device record", err)
	}
	return nil
}

func (s *Store) expired(rec deviceRecord) bool {
	return rec.ExpiresAt > 0 && s.now().UnixMilli() > rec.ExpiresAt
}

func decodeDeviceRecord(raw string) (deviceRecord, error) {
	var rec deviceRecord
	if err := sonic.UnmarshalString(raw, &rec); err != nil {
		return deviceRecord{}, errors.Wrap(errors.KindIdentity, "identity.decode", "device record is not a JSON object", err)
	}
	if rec.DeviceID == "" {
		return deviceRecord{}, errors.New(errors.KindIdentity, "identity.decode", "device record has no deviceId")
	}
	return rec, nil
}

// isLegacyID accepts the bare token shapes earlier generations wrote:
// identifier characters only, no JSON punctuation or whitespace.
func isLegacyID(raw string) bool {
	if raw == "" || len(raw) > maxLegacyIDLen {
		return false
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}
