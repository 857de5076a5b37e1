package testing

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/landingbeacon/landingbeacon-go/internal/collector"
	"github.com/landingbeacon/landingbeacon-go/internal/platform/logging"
	httptransport "github.com/landingbeacon/landingbeacon-go/internal/transport/http"
)

// SetupTestLogger returns a colorless debug logger writing into buf.
func SetupTestLogger(t *testing.T) (*logging.Logger, *bytes.Buffer) {
	t.Helper()

	buf := &bytes.Buffer{}
	logger, err := logging.New(logging.Config{
		Level:   "debug",
		Console: buf,
		NoColor: true,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger, buf
}

// RecordedRequest is a request observed by a Collector.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Collector is an in-process collection API for tests.
type Collector struct {
	*httptest.Server
	Handler *httptransport.CollectorHandler
	Service *collector.Service

	mu       sync.Mutex
	requests []RecordedRequest
}

// NewCollector starts a collection API backed by an in-memory repository.
// apiKeys restricts accepted keys per project; nil accepts any bearer token.
func NewCollector(t *testing.T, apiKeys map[string]string) *Collector {
	t.Helper()

	c := &Collector{Service: collector.NewService(collector.NewMemoryRepository())}
	c.Handler = httptransport.NewCollectorHandler(c.Service, apiKeys)

	router := httptransport.BuildRouter(httptransport.RouterOptions{Logger: logging.Discard()})
	gin.SetMode(gin.TestMode)
	router.Engine.Use(c.record)
	c.Handler.RegisterRoutes(router)

	c.Server = httptest.NewServer(router.Engine)
	t.Cleanup(c.Server.Close)
	return c
}

func (c *Collector) record(ctx *gin.Context) {
	body, _ := io.ReadAll(ctx.Request.Body)
	ctx.Request.Body = io.NopCloser(bytes.NewReader(body))

	c.mu.Lock()
	c.requests = append(c.requests, RecordedRequest{
		Method: ctx.Request.Method,
		Path:   ctx.Request.URL.Path,
		Header: ctx.Request.Header.Clone(),
		Body:   body,
	})
	c.mu.Unlock()
	ctx.Next()
}

// Requests returns every request received so far.
func (c *Collector) Requests() []RecordedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RecordedRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// LastRequest fails the test when nothing was received.
func (c *Collector) LastRequest(t *testing.T) RecordedRequest {
	t.Helper()
	reqs := c.Requests()
	if len(reqs) == 0 {
		t.Fatal("collector received no requests")
	}
	return reqs[len(reqs)-1]
}
