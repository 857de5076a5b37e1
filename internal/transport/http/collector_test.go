package httptransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landingbeacon/landingbeacon-go/internal/collector"
	"github.com/landingbeacon/landingbeacon-go/internal/platform/logging"
)

func newTestRouter(t *testing.T, keys map[string]string) (*gin.Engine, *CollectorHandler, *collector.Service) {
	t.Helper()
	router := BuildRouter(RouterOptions{Logger: logging.Discard()})
	gin.SetMode(gin.TestMode)
	svc := collector.NewService(collector.NewMemoryRepository())
	h := NewCollectorHandler(svc, keys)
	h.RegisterRoutes(router)
	return router.Engine, h, svc
}

func post(engine *gin.Engine, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestCollectorSubmitEmail(t *testing.T) {
	engine, _, svc := newTestRouter(t, nil)

	w := post(engine, "/api/v1/projects/p1/emails", "k", `{"email":"a@x.io","deviceId":"dev-1","deviceType":null}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data EmailData `json:"data"`
	}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "a@x.io", resp.Data.Email)
	assert.NotEmpty(t, resp.Data.ID)
	_, err := time.Parse(time.RFC3339, resp.Data.CreatedAt)
	assert.NoError(t, err)

	emails, err := svc.Repository().ListEmails(testContext(t), "p1")
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "dev-1", emails[0].Context.DeviceID)
	assert.Nil(t, emails[0].Context.DeviceType)

	w = post(engine, "/api/v1/projects/p1/emails", "k", `{"email":"a@x.io"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"duplicate"}`, w.Body.String())
}

func TestCollectorTrackEvent(t *testing.T) {
	engine, _, _ := newTestRouter(t, nil)

	w := post(engine, "/api/v1/projects/p1/events", "k", `{"type":"CTA","contentId":"variant-a","meta":{"section":"pricing"}}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"CTA"`)

	w = post(engine, "/api/v1/projects/p1/events", "k", `{"type":"CONVERSION"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "created by the server")

	w = post(engine, "/api/v1/projects/p1/events", "k", `{"contentId":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request body"}`, w.Body.String())
}

func TestCollectorAuthentication(t *testing.T) {
	engine, _, _ := newTestRouter(t, map[string]string{"p1": "secret"})

	assert.Equal(t, http.StatusUnauthorized, post(engine, "/api/v1/projects/p1/events", "", `{"type":"VIEW"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, post(engine, "/api/v1/projects/p1/events", "wrong", `{"type":"VIEW"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, post(engine, "/api/v1/projects/p2/events", "secret", `{"type":"VIEW"}`).Code)
	assert.Equal(t, http.StatusCreated, post(engine, "/api/v1/projects/p1/events", "secret", `{"type":"VIEW"}`).Code)
}

func TestCollectorFaultInjection(t *testing.T) {
	engine, h, svc := newTestRouter(t, nil)
	h.InjectFault(RouteEmails, Fault{Status: http.StatusServiceUnavailable, Message: "maintenance"})
	h.InjectFault(RouteEmails, Fault{Status: http.StatusInternalServerError})

	w := post(engine, "/api/v1/projects/p1/emails", "k", `{"email":"a@x.io"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"error":"maintenance"}`, w.Body.String())

	w = post(engine, "/api/v1/projects/p1/emails", "k", `{"email":"a@x.io"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Body.String())

	w = post(engine, "/api/v1/projects/p1/emails", "k", `{"email":"a@x.io"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	emails, err := svc.Repository().ListEmails(testContext(t), "p1")
	require.NoError(t, err)
	assert.Len(t, emails, 1, "faulted requests are not stored")
}

func TestCORSPreflight(t *testing.T) {
	engine, _, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/projects/p1/events", nil)
	req.Header.Set("Origin", "https://landing.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

// testContext returns a context canceled when the test finishes
// (equivalent of testing.T.Context, which requires Go 1.24).
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
