// Package tracker is the landing-page tracking client. It attaches the
// anonymous device id and page context to each call, posts email submissions
// and events to the collection API and caches successful submissions locally.
//
// Every network operation returns a Result envelope; expected failures
// (validation, non-2xx responses, network errors) never surface as Go errors.
package tracker

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
	"github.com/landingbeacon/landingbeacon-go/internal/platform/logging"
	"github.com/landingbeacon/landingbeacon-go/internal/platform/observability"
	httptransport "github.com/landingbeacon/landingbeacon-go/internal/transport/http"
	"github.com/landingbeacon/landingbeacon-go/pkg/identity"
	"github.com/landingbeacon/landingbeacon-go/pkg/kvstore"
	"github.com/landingbeacon/landingbeacon-go/pkg/pagectx"
)

// Version is reported in the User-Agent of outbound requests.
const Version = "0.3.0"

// Client reports to a single project. It is safe for concurrent use.
type Client struct {
	cfg       Config
	ids       *identity.Store
	deviceID  string
	hasDevice bool
	page      pagectx.Provider
	signals   bool
	transport *httptransport.Client
	log       *logging.Logger
	notify    *notifier
	owned     kvstore.Store
}

// New validates cfg and resolves the device id once. Configuration errors are
// returned before any storage or network access.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	o := options{signals: true}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		cfg:       cfg,
		page:      o.page,
		signals:   o.signals,
		transport: httptransport.NewClient(o.httpClient, "landingbeacon-go/"+Version),
		log:       logging.FromSlog(o.logger),
		notify:    newNotifier(o.bus),
	}
	if c.page == nil {
		c.page = pagectx.None{}
	}

	c.ids = o.identity
	if c.ids == nil {
		storage := o.storage
		if !o.storageSet {
			storage = kvstore.NewMemory()
			c.owned = storage
		}
		c.ids = identity.New(storage, identity.WithLogger(o.logger))
	}

	c.deviceID, c.hasDevice = c.ids.GetOrCreateDeviceID(context.Background())
	if !c.hasDevice {
		c.log.WarnTag(logging.TagTracker, "no persistent storage, events will carry a null deviceId")
	}
	return c, nil
}

// Config returns the normalized configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// DeviceID returns the identifier fixed at construction. ok is false when
// storage was unavailable.
func (c *Client) DeviceID() (string, bool) {
	return c.deviceID, c.hasDevice
}

// Close releases storage the client created itself.
func (c *Client) Close(ctx context.Context) error {
	if c.owned == nil {
		return nil
	}
	return c.owned.Close(ctx)
}

// HasSubmittedEmail reports the locally cached submission record. It never
// touches the network.
func (c *Client) HasSubmittedEmail(ctx context.Context) identity.SubmissionStatus {
	return c.ids.GetSubmissionStatus(ctx, c.cfg.ProjectID)
}

// SubmitEmail sends an address to the project. On success the submission is
// recorded locally; a failure leaves local state untouched.
func (c *Client) SubmitEmail(ctx context.Context, opts SubmitEmailOptions) Result[EmailSubmission] {
	return run(ctx, c, OpSubmitEmail, func(ctx context.Context) (EmailSubmission, error) {
		body := c.basePayload()
		body["email"] = opts.Email

		var resp struct {
			Data EmailSubmission `json:"data"`
		}
		if err := c.post(ctx, c.cfg.emailsURL(), body, &resp); err != nil {
			return EmailSubmission{}, err
		}

		status := c.ids.RecordSubmission(ctx, c.cfg.ProjectID, opts.Email)
		c.notify.publish(TopicEmailSubmitted, status)
		return resp.Data, nil
	})
}

// TrackEvent sends an event. CONVERSION and unknown types fail without a
// network call.
func (c *Client) TrackEvent(ctx context.Context, opts TrackEventOptions) Result[TrackedEvent] {
	return run(ctx, c, OpTrackEvent, func(ctx context.Context) (TrackedEvent, error) {
		if err := validateEventType(opts.Type); err != nil {
			return TrackedEvent{}, err
		}

		body := c.basePayload()
		body["type"] = opts.Type
		if opts.ContentID != "" {
			body["contentId"] = opts.ContentID
		}
		if opts.Meta != nil {
			body["meta"] = opts.Meta
		}

		var resp struct {
			Data TrackedEvent `json:"data"`
		}
		if err := c.post(ctx, c.cfg.eventsURL(), body, &resp); err != nil {
			return TrackedEvent{}, err
		}
		return resp.Data, nil
	})
}

// TrackPageView sends a VIEW, with the referrer in meta when the page context
// exposes a non-empty one.
func (c *Client) TrackPageView(ctx context.Context, contentID string) Result[TrackedEvent] {
	var meta map[string]any
	if ref, ok := c.page.Referrer(); ok && ref != "" {
		meta = map[string]any{"referrer": ref}
	}
	return c.TrackEvent(ctx, TrackEventOptions{Type: EventView, ContentID: contentID, Meta: meta})
}

// TrackCTA sends a CTA for the named page section.
func (c *Client) TrackCTA(ctx context.Context, section, contentID string) Result[TrackedEvent] {
	return c.TrackEvent(ctx, TrackEventOptions{
		Type:      EventCTA,
		ContentID: contentID,
		Meta:      map[string]any{"section": section},
	})
}

// TrackNavigate sends a NAVIGATE with meta passed through unchanged.
func (c *Client) TrackNavigate(ctx context.Context, meta map[string]any, contentID string) Result[TrackedEvent] {
	return c.TrackEvent(ctx, TrackEventOptions{Type: EventNavigate, ContentID: contentID, Meta: meta})
}

// PageViewOnce fires at most one page view, for bindings that track on mount.
type PageViewOnce struct {
	c      *Client
	once   sync.Once
	result Result[TrackedEvent]
}

func (c *Client) PageViewOnce() *PageViewOnce {
	return &PageViewOnce{c: c}
}

// Fire sends the page view on the first call. Later calls return the first
// result and fired=false.
func (p *PageViewOnce) Fire(ctx context.Context, contentID string) (res Result[TrackedEvent], fired bool) {
	p.once.Do(func() {
		p.result = p.c.TrackPageView(ctx, contentID)
		fired = true
	})
	return p.result, fired
}

func validateEventType(t EventType) error {
	switch t {
	case EventView, EventCTA, EventSubmit, EventNavigate:
		return nil
	case EventConversion:
		return errors.New(errors.KindValidation, "tracker.track_event", "CONVERSION events are created by the server")
	default:
		return errors.New(errors.KindValidation, "tracker.track_event", fmt.Sprintf("unsupported event type %q", t))
	}
}

// basePayload holds the fields shared by both endpoints. deviceId is always
// present; the context fields are present (possibly null) when signals are on.
func (c *Client) basePayload() map[string]any {
	body := map[string]any{"deviceId": nil}
	if c.hasDevice {
		body["deviceId"] = c.deviceID
	}
	if c.signals {
		s := pagectx.Collect(c.page)
		body["deviceType"] = s.DeviceType
		body["referrer"] = s.Referrer
		body["userAgent"] = s.UserAgent
	}
	return body
}

func (c *Client) post(ctx context.Context, url string, body, out any) error {
	return c.transport.PostJSON(ctx, url, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}, body, out)
}

// run wraps an operation with bus notifications, tracing and metrics, and
// folds its error into the Result envelope.
func run[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) Result[T] {
	c.notify.publish(TopicRequestStarted, op)

	ctx, spanEnd := observability.StartSpan(ctx, "tracker", op)
	data, err := fn(ctx)
	spanEnd(err)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	observability.RecordMetric(ctx, "tracker.request", 1, map[string]string{"op": op, "outcome": outcome})

	if err != nil {
		msg := failureMessage(err)
		c.log.WarnTag(logging.TagTracker, "request failed", map[string]any{"op": op, "error": msg})
		c.notify.publish(TopicRequestFinished, op, false, msg)
		return failed[T](msg)
	}
	c.log.DebugTag(logging.TagTracker, "request succeeded", map[string]any{"op": op})
	c.notify.publish(TopicRequestFinished, op, true, "")
	return succeeded(data)
}

// failureMessage is the caller-facing text for err: the server message or
// "HTTP {status}" for non-2xx responses, the underlying cause otherwise.
func failureMessage(err error) string {
	var status *httptransport.StatusError
	if stderrors.As(err, &status) {
		return status.Error()
	}
	var typed *errors.Error
	if stderrors.As(err, &typed) {
		if typed.Cause != nil {
			return typed.Cause.Error()
		}
		return typed.Message
	}
	return err.Error()
}
