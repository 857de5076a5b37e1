package httptransport

import (
	stderrors "errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/landingbeacon/landingbeacon-go/internal/collector"
	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
)

// Fault is a scripted response returned instead of handling a request.
type Fault struct {
	Status  int
	Message string
	// Delay postpones the response, for exercising client timeouts.
	Delay time.Duration
}

// Route names accepted by CollectorHandler.InjectFault.
const (
	RouteEmails = "emails"
	RouteEvents = "events"
)

// CollectorHandler serves the collection API on top of a collector.Service.
type CollectorHandler struct {
	service *collector.Service
	// apiKeys maps project id to its key. An empty map accepts any bearer token.
	apiKeys map[string]string

	mu     sync.Mutex
	faults map[string][]Fault
}

// NewCollectorHandler creates a handler.
func NewCollectorHandler(service *collector.Service, apiKeys map[string]string) *CollectorHandler {
	return &CollectorHandler{
		service: service,
		apiKeys: apiKeys,
		faults:  make(map[string][]Fault),
	}
}

// RegisterRoutes mounts the project routes under router.API.
func (h *CollectorHandler) RegisterRoutes(router *Router) {
	projects := router.API.Group("/projects/:projectId")
	projects.Use(h.authenticate)
	projects.POST("/emails", h.SubmitEmail)
	projects.POST("/events", h.TrackEvent)
}

// InjectFault queues f for the next request to route.
func (h *CollectorHandler) InjectFault(route string, f Fault) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults[route] = append(h.faults[route], f)
}

func (h *CollectorHandler) nextFault(route string) (Fault, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	queue := h.faults[route]
	if len(queue) == 0 {
		return Fault{}, false
	}
	h.faults[route] = queue[1:]
	return queue[0], true
}

func (h *CollectorHandler) authenticate(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		RespondError(c, http.StatusUnauthorized, "missing api key")
		return
	}
	if len(h.apiKeys) == 0 {
		c.Next()
		return
	}
	if want, ok := h.apiKeys[c.Param("projectId")]; !ok || want != token {
		RespondError(c, http.StatusUnauthorized, "invalid api key")
		return
	}
	c.Next()
}

// applyFault writes a scripted response when one is queued.
func (h *CollectorHandler) applyFault(c *gin.Context, route string) bool {
	f, ok := h.nextFault(route)
	if !ok {
		return false
	}
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-c.Request.Context().Done():
			c.Abort()
			return true
		}
	}
	if f.Message == "" {
		c.AbortWithStatus(f.Status)
		return true
	}
	RespondError(c, f.Status, f.Message)
	return true
}

// SubmitEmailRequest is the body of POST /emails.
type SubmitEmailRequest struct {
	Email      string  `json:"email" binding:"required"`
	DeviceID   *string `json:"deviceId"`
	DeviceType *string `json:"deviceType"`
	Referrer   *string `json:"referrer"`
	UserAgent  *string `json:"userAgent"`
}

// EmailData is the "data" member of a successful email submission.
type EmailData struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
}

// SubmitEmail handles POST /projects/:projectId/emails.
func (h *CollectorHandler) SubmitEmail(c *gin.Context) {
	if h.applyFault(c, RouteEmails) {
		return
	}

	var req SubmitEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	email, err := h.service.SubmitEmail(c.Request.Context(), c.Param("projectId"), collector.EmailInput{
		Email:   req.Email,
		Context: contextOf(req.DeviceID, req.DeviceType, req.Referrer, req.UserAgent),
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	RespondData(c, http.StatusCreated, EmailData{
		ID:        email.ID,
		Email:     email.Email,
		CreatedAt: formatTime(email.CreatedAt),
	})
}

// TrackEventRequest is the body of POST /events.
type TrackEventRequest struct {
	Type       string         `json:"type" binding:"required"`
	ContentID  string         `json:"contentId"`
	Meta       map[string]any `json:"meta"`
	DeviceID   *string        `json:"deviceId"`
	DeviceType *string        `json:"deviceType"`
	Referrer   *string        `json:"referrer"`
	UserAgent  *string        `json:"userAgent"`
}

// EventData is the "data" member of a successful event.
type EventData struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	CreatedAt string `json:"createdAt"`
}

// TrackEvent handles POST /projects/:projectId/events.
func (h *CollectorHandler) TrackEvent(c *gin.Context) {
	if h.applyFault(c, RouteEvents) {
		return
	}

	var req TrackEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := h.service.TrackEvent(c.Request.Context(), c.Param("projectId"), collector.EventInput{
		Type:      req.Type,
		ContentID: req.ContentID,
		Meta:      req.Meta,
		Context:   contextOf(req.DeviceID, req.DeviceType, req.Referrer, req.UserAgent),
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	RespondData(c, http.StatusCreated, EventData{
		ID:        event.ID,
		Type:      event.Type,
		CreatedAt: formatTime(event.CreatedAt),
	})
}

func (h *CollectorHandler) respondServiceError(c *gin.Context, err error) {
	if stderrors.Is(err, collector.ErrDuplicate) {
		RespondError(c, http.StatusConflict, "duplicate")
		return
	}
	var typed *errors.Error
	if stderrors.As(err, &typed) && typed.Kind == errors.KindValidation {
		RespondError(c, http.StatusBadRequest, typed.Message)
		return
	}
	_ = c.Error(err)
	RespondError(c, http.StatusInternalServerError, "internal error")
}

func contextOf(deviceID, deviceType, referrer, userAgent *string) collector.Context {
	ctx := collector.Context{
		DeviceType: deviceType,
		Referrer:   referrer,
		UserAgent:  userAgent,
	}
	if deviceID != nil {
		ctx.DeviceID = *deviceID
	}
	return ctx
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
