package tracker

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
	lbtesting "github.com/landingbeacon/landingbeacon-go/internal/platform/testing"
	httptransport "github.com/landingbeacon/landingbeacon-go/internal/transport/http"
	"github.com/landingbeacon/landingbeacon-go/pkg/identity"
	"github.com/landingbeacon/landingbeacon-go/pkg/kvstore"
	"github.com/landingbeacon/landingbeacon-go/pkg/pagectx"
)

const (
	testProject = "proj_1"
	testKey     = "pk_test"
)

// countingStore counts every access to the wrapped store.
type countingStore struct {
	kvstore.Store
	calls atomic.Int32
}

func (s *countingStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.calls.Add(1)
	return s.Store.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key, value string) error {
	s.calls.Add(1)
	return s.Store.Set(ctx, key, value)
}

func newTestClient(t *testing.T, col *lbtesting.Collector, opts ...Option) *Client {
	t.Helper()
	c, err := New(Config{ProjectID: testProject, APIKey: testKey, APIURL: col.URL + "/"}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func decodeBody(t *testing.T, req lbtesting.RecordedRequest) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, sonic.Unmarshal(req.Body, &body))
	return body
}

func TestNewRejectsMissingConfigBeforeStorageAccess(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing project", cfg: Config{APIKey: testKey}},
		{name: "missing key", cfg: Config{ProjectID: testProject}},
		{name: "blank project", cfg: Config{ProjectID: "  ", APIKey: testKey}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &countingStore{Store: kvstore.NewMemory()}
			c, err := New(tt.cfg, WithStorage(store))
			assert.Nil(t, c)
			assert.True(t, errors.IsKind(err, errors.KindConfig))
			assert.Zero(t, store.calls.Load())
		})
	}
}

func TestNewNormalizesAPIURL(t *testing.T) {
	c, err := New(Config{ProjectID: testProject, APIKey: testKey})
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIURL, c.Config().APIURL)

	c, err = New(Config{ProjectID: testProject, APIKey: testKey, APIURL: "http://localhost:8787//"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8787", c.Config().APIURL)
	assert.Equal(t, "http://localhost:8787/api/v1/projects/proj_1/events", c.Config().eventsURL())
}

func TestSubmitEmailSuccessRecordsSubmission(t *testing.T) {
	ctx := context.Background()
	col := lbtesting.NewCollector(t, map[string]string{testProject: testKey})
	store := kvstore.NewMemory()
	c := newTestClient(t, col, WithStorage(store), WithPageContext(pagectx.Static{
		ReferrerValue:  "https://news.example/",
		UserAgentValue: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148",
	}))

	assert.False(t, c.HasSubmittedEmail(ctx).Submitted)

	res := c.SubmitEmail(ctx, SubmitEmailOptions{Email: "a@x.io"})
	require.True(t, res.Success, res.Error)
	require.NotNil(t, res.Data)
	assert.Equal(t, "a@x.io", res.Data.Email)
	assert.NotEmpty(t, res.Data.ID)
	assert.NotEmpty(t, res.Data.CreatedAt)

	status := c.HasSubmittedEmail(ctx)
	assert.True(t, status.Submitted)
	assert.Equal(t, "a@x.io", status.Email)

	req := col.LastRequest(t)
	assert.Equal(t, "/api/v1/projects/proj_1/emails", req.Path)
	assert.Equal(t, "Bearer "+testKey, req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	deviceID, ok := c.DeviceID()
	require.True(t, ok)
	body := decodeBody(t, req)
	assert.Equal(t, map[string]any{
		"email":      "a@x.io",
		"deviceId":   deviceID,
		"deviceType": "mobile",
		"referrer":   "https://news.example/",
		"userAgent":  "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148",
	}, body)
}

func TestSubmitEmailDuplicateDoesNotMutateState(t *testing.T) {
	ctx := context.Background()
	col := lbtesting.NewCollector(t, nil)

	first := newTestClient(t, col)
	require.True(t, first.SubmitEmail(ctx, SubmitEmailOptions{Email: "a@x.io"}).Success)

	store := kvstore.NewMemory()
	second := newTestClient(t, col, WithStorage(store))
	res := second.SubmitEmail(ctx, SubmitEmailOptions{Email: "a@x.io"})

	assert.Equal(t, Result[EmailSubmission]{Success: false, Error: "duplicate"}, res)
	assert.False(t, second.HasSubmittedEmail(ctx).Submitted)
	_, found, err := store.Get(ctx, identity.DefaultSubmissionKeyPrefix+testProject)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSubmitEmailEmptySuccessBodyFails(t *testing.T) {
	ctx := context.Background()
	col := lbtesting.NewCollector(t, nil)
	store := kvstore.NewMemory()
	c := newTestClient(t, col, WithStorage(store))

	col.Handler.InjectFault(httptransport.RouteEmails, httptransport.Fault{Status: http.StatusNoContent})
	res := c.SubmitEmail(ctx, SubmitEmailOptions{Email: "a@x.io"})

	assert.False(t, res.Success)
	assert.Nil(t, res.Data)
	assert.Contains(t, res.Error, "decode response")
	assert.False(t, c.HasSubmittedEmail(ctx).Submitted)
	_, found, err := store.Get(ctx, identity.DefaultSubmissionKeyPrefix+testProject)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFailedResultOmitsData(t *testing.T) {
	col := lbtesting.NewCollector(t, nil)
	c := newTestClient(t, col)

	res := c.TrackEvent(context.Background(), TrackEventOptions{Type: EventConversion})
	raw, err := sonic.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"CONVERSION events are created by the server"}`, string(raw))
}

func TestNonSuccessStatusFallsBackToHTTPStatus(t *testing.T) {
	ctx := context.Background()
	col := lbtesting.NewCollector(t, nil)
	col.Handler.InjectFault(httptransport.RouteEmails, lbFault(http.StatusInternalServerError, ""))
	col.Handler.InjectFault(httptransport.RouteEvents, lbFault(http.StatusTooManyRequests, "slow down"))
	c := newTestClient(t, col)

	res := c.SubmitEmail(ctx, SubmitEmailOptions{Email: "a@x.io"})
	assert.False(t, res.Success)
	assert.Equal(t, "HTTP 500", res.Error)
	assert.False(t, c.HasSubmittedEmail(ctx).Submitted)

	ev := c.TrackCTA(ctx, "hero", "")
	assert.False(t, ev.Success)
	assert.Equal(t, "slow down", ev.Error)
}

func lbFault(status int, msg string) httptransport.Fault {
	return httptransport.Fault{Status: status, Message: msg}
}

func TestNetworkFailureIsReportedInResult(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{ProjectID: testProject, APIKey: testKey, APIURL: url})
	require.NoError(t, err)

	res := c.SubmitEmail(ctx, SubmitEmailOptions{Email: "a@x.io"})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.NotContains(t, res.Error, "[transport:", "the raw cause is reported")
	assert.False(t, c.HasSubmittedEmail(ctx).Submitted)
}

func TestTimeoutIsReportedInResult(t *testing.T) {
	col := lbtesting.NewCollector(t, nil)
	col.Handler.InjectFault(httptransport.RouteEvents, httptransport.Fault{Status: http.StatusOK, Delay: time.Second})
	c := newTestClient(t, col, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))

	res := c.TrackPageView(context.Background(), "")
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestTrackCTABodyShape(t *testing.T) {
	col := lbtesting.NewCollector(t, nil)
	c := newTestClient(t, col)

	res := c.TrackCTA(context.Background(), "pricing", "variant-a")
	require.True(t, res.Success, res.Error)
	require.NotNil(t, res.Data)
	assert.Equal(t, EventCTA, res.Data.Type)

	req := col.LastRequest(t)
	assert.Equal(t, "/api/v1/projects/proj_1/events", req.Path)
	body := decodeBody(t, req)
	assert.Equal(t, "CTA", body["type"])
	assert.Equal(t, "variant-a", body["contentId"])
	assert.Equal(t, map[string]any{"section": "pricing"}, body["meta"])
}

func TestConversionAndUnknownTypesAreRejectedLocally(t *testing.T) {
	col := lbtesting.NewCollector(t, nil)
	c := newTestClient(t, col)

	res := c.TrackEvent(context.Background(), TrackEventOptions{Type: EventConversion})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "CONVERSION")

	res = c.TrackEvent(context.Background(), TrackEventOptions{Type: "CLICK"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "CLICK")

	assert.Empty(t, col.Requests())
}

func TestContextFieldsAreNullWithoutSources(t *testing.T) {
	col := lbtesting.NewCollector(t, nil)
	c := newTestClient(t, col, WithStorage(nil))

	_, ok := c.DeviceID()
	assert.False(t, ok)

	require.True(t, c.TrackEvent(context.Background(), TrackEventOptions{Type: EventSubmit}).Success)
	body := decodeBody(t, col.LastRequest(t))

	for _, key := range []string{"deviceId", "deviceType", "referrer", "userAgent"} {
		v, present := body[key]
		assert.True(t, present, key)
		assert.Nil(t, v, key)
	}
	assert.NotContains(t, body, "contentId")
	assert.NotContains(t, body, "meta")
}

func TestContextSignalsDisabledOmitsFields(t *testing.T) {
	col := lbtesting.NewCollector(t, nil)
	c := newTestClient(t, col, WithContextSignals(false), WithPageContext(pagectx.Static{UserAgentValue: "Mozilla/5.0 (iPad)"}))

	require.True(t, c.SubmitEmail(context.Background(), SubmitEmailOptions{Email: "b@x.io"}).Success)
	body := decodeBody(t, col.LastRequest(t))
	assert.Contains(t, body, "deviceId")
	assert.NotContains(t, body, "deviceType")
	assert.NotContains(t, body, "referrer")
	assert.NotContains(t, body, "userAgent")
}

func TestTrackPageViewReferrerMeta(t *testing.T) {
	col := lbtesting.NewCollector(t, nil)

	withRef := newTestClient(t, col, WithPageContext(pagectx.Static{ReferrerValue: "https://ads.example/"}))
	require.True(t, withRef.TrackPageView(context.Background(), "variant-b").Success)
	body := decodeBody(t, col.LastRequest(t))
	assert.Equal(t, "VIEW", body["type"])
	assert.Equal(t, "variant-b", body["contentId"])
	assert.Equal(t, map[string]any{"referrer": "https://ads.example/"}, body["meta"])

	noRef := newTestClient(t, col)
	require.True(t, noRef.TrackPageView(context.Background(), "").Success)
	body = decodeBody(t, col.LastRequest(t))
	assert.NotContains(t, body, "meta")
	assert.NotContains(t, body, "contentId")
}

func TestTrackNavigatePassesMetaThrough(t *testing.T) {
	col := lbtesting.NewCollector(t, nil)
	c := newTestClient(t, col)

	meta := map[string]any{"to": "/pricing", "depth": 2, "tags": []any{"a", "b"}}
	require.True(t, c.TrackNavigate(context.Background(), meta, "").Success)

	body := decodeBody(t, col.LastRequest(t))
	assert.Equal(t, "NAVIGATE", body["type"])
	assert.Equal(t, map[string]any{"to": "/pricing", "depth": float64(2), "tags": []any{"a", "b"}}, body["meta"])
}

func TestClientsShareDeviceIDThroughStorage(t *testing.T) {
	col := lbtesting.NewCollector(t, nil)
	store := kvstore.NewMemory()

	a := newTestClient(t, col, WithStorage(store))
	b := newTestClient(t, col, WithStorage(store))

	idA, okA := a.DeviceID()
	idB, okB := b.DeviceID()
	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, idA, idB)
}

func TestWithIdentityTakesPrecedence(t *testing.T) {
	col := lbtesting.NewCollector(t, nil)
	ids := identity.New(kvstore.NewMemory(), identity.WithPrefix("lp_"), identity.WithTTL(0))

	c := newTestClient(t, col, WithIdentity(ids), WithStorage(nil))
	id, ok := c.DeviceID()
	require.True(t, ok)
	assert.Regexp(t, `^lp_`, id)
}

func TestConcurrentSubmitsAreLastWriteWins(t *testing.T) {
	ctx := context.Background()
	col := lbtesting.NewCollector(t, nil)
	c := newTestClient(t, col)

	emails := []string{"one@x.io", "two@x.io", "three@x.io", "four@x.io"}
	g, gctx := errgroup.WithContext(ctx)
	for _, email := range emails {
		email := email
		g.Go(func() error {
			if res := c.SubmitEmail(gctx, SubmitEmailOptions{Email: email}); !res.Success {
				return stderrors.New(res.Error)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	status := c.HasSubmittedEmail(ctx)
	assert.True(t, status.Submitted)
	assert.Contains(t, emails, status.Email)
	assert.Len(t, col.Requests(), len(emails))
}

func TestPageViewOnce(t *testing.T) {
	col := lbtesting.NewCollector(t, nil)
	c := newTestClient(t, col)
	pv := c.PageViewOnce()

	first, fired := pv.Fire(context.Background(), "")
	assert.True(t, fired)
	assert.True(t, first.Success)

	second, fired := pv.Fire(context.Background(), "")
	assert.False(t, fired)
	assert.Equal(t, first, second)
	assert.Len(t, col.Requests(), 1)
}

func TestClientNeverFiresPageViewOnConstruction(t *testing.T) {
	col := lbtesting.NewCollector(t, nil)
	newTestClient(t, col)
	assert.Empty(t, col.Requests())
}
