package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"skipper/internal/automation"
	"skipper/internal/ghl"
	"skipper/internal/logging"
	"skipper/internal/workflow"
)

// automationRequest is the shared body of the automation mutation endpoints.
type automationRequest struct {
	Instruction string             `json:"instruction"`
	SessionID   string             `json:"sessionId"`
	Geolocation string             `json:"geolocation"`
	Model       string             `json:"model"`
	KeepOpen    bool               `json:"keepOpen"`
	Actions     []string           `json:"actions"`
	DataType    string             `json:"dataType"`
	SchemaHint  string             `json:"schemaHint"`
	Tabs        []workflow.TabStep `json:"tabs"`
}

func (r automationRequest) workflowRequest() workflow.Request {
	return workflow.Request{
		Instruction: r.Instruction,
		SessionID:   r.SessionID,
		Geolocation: r.Geolocation,
		Model:       r.Model,
		KeepOpen:    r.KeepOpen,
	}
}

// APIHandler exposes the automation mutation surface. Every endpoint returns
// a definite outcome; subscribers on the stream see the same lifecycle as
// events, but the synchronous response is the guaranteed delivery path.
type APIHandler struct {
	executor *workflow.Executor
	ghl      *ghl.Service
	logger   logging.Logger
}

func NewAPIHandler(executor *workflow.Executor, ghlService *ghl.Service) *APIHandler {
	return &APIHandler{
		executor: executor,
		ghl:      ghlService,
		logger:   logging.NewComponentLogger("APIHandler"),
	}
}

func (h *APIHandler) StartSession(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.executor.StartSession(c.Request.Context(), req.workflowRequest()))
}

func (h *APIHandler) Chat(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	if req.Instruction == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "instruction is required"})
		return
	}
	c.JSON(http.StatusOK, h.executor.Chat(c.Request.Context(), req.workflowRequest()))
}

func (h *APIHandler) ObservePage(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.executor.ObservePage(c.Request.Context(), req.workflowRequest()))
}

func (h *APIHandler) ExecuteActions(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	if len(req.Actions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actions are required"})
		return
	}
	c.JSON(http.StatusOK, h.executor.ExecuteActions(c.Request.Context(), req.workflowRequest(), req.Actions))
}

func (h *APIHandler) ExtractData(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	if req.DataType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dataType is required"})
		return
	}
	c.JSON(http.StatusOK, h.executor.ExtractData(c.Request.Context(), req.workflowRequest(), req.DataType, req.SchemaHint))
}

// MultiTab runs as an owned execution, so the caller must identify itself;
// only that identity may later subscribe to the execution's stream.
func (h *APIHandler) MultiTab(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	req, ok := h.bind(c)
	if !ok {
		return
	}
	if len(req.Tabs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tabs are required"})
		return
	}
	c.JSON(http.StatusOK, h.executor.MultiTabWorkflow(c.Request.Context(), req.workflowRequest(), userID, req.Tabs))
}

// ghlLoginRequest carries routing and credentials in one body. The struct is
// never logged; the logger layer additionally redacts credential-shaped
// values as a second line of defense.
type ghlLoginRequest struct {
	SessionID     string `json:"sessionId"`
	Geolocation   string `json:"geolocation"`
	Model         string `json:"model"`
	KeepOpen      *bool  `json:"keepOpen"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	LocationID    string `json:"locationId"`
	TwoFactorCode string `json:"twoFactorCode"`
}

func (h *APIHandler) GHLLogin(c *gin.Context) {
	var body ghlLoginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if body.Email == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	// A login is almost always followed by extraction calls, so the session
	// stays open unless the caller opts out.
	keepOpen := true
	if body.KeepOpen != nil {
		keepOpen = *body.KeepOpen
	}

	creds := ghl.Credentials{
		Email:         body.Email,
		Password:      body.Password,
		LocationID:    body.LocationID,
		TwoFactorCode: body.TwoFactorCode,
	}
	// The bound body is the only other copy of the secrets; drop it before
	// the flow runs. Login zeroes creds itself.
	body.Password, body.TwoFactorCode = "", ""

	result := h.ghl.Login(c.Request.Context(), ghl.LoginRequest{
		SessionID:   body.SessionID,
		Geolocation: body.Geolocation,
		Model:       body.Model,
		KeepOpen:    keepOpen,
	}, &creds)
	c.JSON(http.StatusOK, result)
}

type ghlExtractRequest struct {
	SessionID   string `json:"sessionId"`
	ContactName string `json:"contactName"`
}

// GHLExtract runs one best-effort extraction against a logged-in session.
// The session stays open: extraction is a read and callers typically chain
// several of them.
func (h *APIHandler) GHLExtract(c *gin.Context) {
	kind := c.Param("kind")

	var body ghlExtractRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if body.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}

	ctx := c.Request.Context()
	sess, err := h.executor.Manager().Acquire(ctx, body.SessionID, automation.SessionOptions{})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}
	defer func() {
		if err := h.executor.Manager().Release(ctx, sess, true); err != nil {
			h.logger.Warn("release session %s after extraction: %v", sess.ID, err)
		}
	}()

	switch kind {
	case "contacts":
		c.JSON(http.StatusOK, listResult(h.ghl.ExtractContacts(ctx, sess)))
	case "workflows":
		c.JSON(http.StatusOK, listResult(h.ghl.ExtractWorkflows(ctx, sess)))
	case "pipelines":
		c.JSON(http.StatusOK, listResult(h.ghl.ExtractPipelines(ctx, sess)))
	case "dashboard-metrics":
		c.JSON(http.StatusOK, gin.H{"success": true, "item": h.ghl.ExtractDashboardMetrics(ctx, sess)})
	case "campaign-stats":
		c.JSON(http.StatusOK, listResult(h.ghl.ExtractCampaignStats(ctx, sess)))
	case "contact-detail":
		if body.ContactName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "contactName is required"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "item": h.ghl.ExtractContactDetail(ctx, sess, body.ContactName)})
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown extraction kind: " + kind})
	}
}

// listResult keeps a faulted extraction serializing as an empty list rather
// than null; callers treat both as "nothing found or a transient fault".
func listResult[T any](items []T) gin.H {
	if items == nil {
		items = []T{}
	}
	return gin.H{"success": true, "items": items}
}

func (h *APIHandler) bind(c *gin.Context) (automationRequest, bool) {
	var req automationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return req, false
	}
	return req, true
}
