package tracker

import (
	"log/slog"
	"net/http"

	evbus "github.com/asaskevich/EventBus"

	"github.com/landingbeacon/landingbeacon-go/pkg/identity"
	"github.com/landingbeacon/landingbeacon-go/pkg/kvstore"
	"github.com/landingbeacon/landingbeacon-go/pkg/pagectx"
)

type options struct {
	storage    kvstore.Store
	storageSet bool
	identity   *identity.Store
	page       pagectx.Provider
	signals    bool
	httpClient *http.Client
	logger     *slog.Logger
	bus        evbus.Bus
}

type Option func(*options)

// WithStorage sets the persistence backing the identity store. Passing nil
// runs the client without persistent storage: no device id, no submission
// records.
func WithStorage(store kvstore.Store) Option {
	return func(o *options) {
		o.storage = store
		o.storageSet = true
	}
}

// WithIdentity supplies a preconfigured identity store (TTL, prefix, legacy
// adoption). It takes precedence over WithStorage.
func WithIdentity(store *identity.Store) Option {
	return func(o *options) { o.identity = store }
}

// WithPageContext sets the source of referrer and user agent.
func WithPageContext(p pagectx.Provider) Option {
	return func(o *options) { o.page = p }
}

// WithContextSignals toggles the deviceType, referrer and userAgent body
// fields. Enabled by default.
func WithContextSignals(enabled bool) Option {
	return func(o *options) { o.signals = enabled }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEventBus mirrors every notification onto bus, for applications that
// share one bus between components. EventBus holds its lock while handlers
// run, so handlers subscribed on bus itself must not publish to bus or call
// the client; subscribe through Client.Subscribe for that.
func WithEventBus(bus evbus.Bus) Option {
	return func(o *options) { o.bus = bus }
}
