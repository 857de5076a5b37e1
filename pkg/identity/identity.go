// Package identity owns the anonymous device identifier and the per-project
// submission records kept in local key-value storage.
//
// Device identifiers are persisted under a single key as
//
//	{"deviceId": "<id>", "expiresAt": <unix millis>}
//
// With the default policy the record expires 30 minutes after creation and a
// read past that point replaces it. A TTL of zero selects the permanent policy:
// the record is written without expiresAt and never expires.
//
// Earlier SDK generations stored the identifier as a bare string. Such values
// fail structural parsing and are replaced, unless legacy adoption is enabled,
// in which case the bare identifier is re-wrapped into the record format and
// the visitor keeps the same identity.
package identity

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/logging"
	"github.com/landingbeacon/landingbeacon-go/pkg/kvstore"
)

const (
	DefaultDeviceKey           = "lb_device_id"
	DefaultSubmissionKeyPrefix = "lb_submission_"
	DefaultTTL                 = 30 * time.Minute
)

// Status describes how a read against storage resolved.
type Status int

const (
	// StatusOK: a well-formed, live value was found and returned unchanged.
	StatusOK Status = iota
	// StatusMissing: nothing stored under the key.
	StatusMissing
	// StatusCreated: no previous identity existed, a new one was written.
	StatusCreated
	// StatusAdopted: an existing identifier was kept and rewritten under the
	// current policy (a legacy bare string, or a record without expiresAt
	// read under a TTL).
	StatusAdopted
	// StatusExpired: the stored identity had expired and was replaced.
	StatusExpired
	// StatusCorrupt: the stored value failed to parse and was discarded.
	StatusCorrupt
	// StatusUnavailable: storage is absent or failed.
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusMissing:
		return "missing"
	case StatusCreated:
		return "created"
	case StatusAdopted:
		return "adopted"
	case StatusExpired:
		return "expired"
	case StatusCorrupt:
		return "corrupt"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Store reads and writes identity state through a kvstore.Store. A nil
// backing store means persistent storage is unavailable.
type Store struct {
	kv               kvstore.Store
	ttl              time.Duration
	prefix           string
	deviceKey        string
	submissionPrefix string
	adoptLegacy      bool
	now              func() time.Time
	newID            func() string
	log              *logging.Logger
}

type Option func(*Store)

// WithTTL sets the device identity lifetime. Zero selects the permanent policy.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl < 0 {
			ttl = 0
		}
		s.ttl = ttl
	}
}

// WithPrefix prepends a static namespace to generated identifiers.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithKeys overrides the storage key names, for interoperating with state
// written by earlier installations. Empty values keep the defaults.
func WithKeys(deviceKey, submissionPrefix string) Option {
	return func(s *Store) {
		if deviceKey != "" {
			s.deviceKey = deviceKey
		}
		if submissionPrefix != "" {
			s.submissionPrefix = submissionPrefix
		}
	}
}

// WithLegacyAdoption keeps bare-string identifiers from earlier generations
// instead of replacing them.
func WithLegacyAdoption(enabled bool) Option {
	return func(s *Store) { s.adoptLegacy = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = logging.FromSlog(l) }
}

// New builds an identity store over kv.
func New(kv kvstore.Store, opts ...Option) *Store {
	s := &Store{
		kv:               kv,
		ttl:              DefaultTTL,
		deviceKey:        DefaultDeviceKey,
		submissionPrefix: DefaultSubmissionKeyPrefix,
		now:              time.Now,
		newID:            uuid.NewString,
		log:              logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL reports the configured lifetime; zero means permanent.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// DeviceKey reports the storage key holding the device record.
func (s *Store) DeviceKey() string {
	return s.deviceKey
}

// SubmissionKey reports the storage key holding projectID's submission record.
func (s *Store) SubmissionKey(projectID string) string {
	return s.submissionPrefix + projectID
}
