package ghl

import (
	"context"
	"strings"

	"skipper/internal/automation"
	"skipper/internal/events"
	"skipper/internal/logging"
)

const DefaultLoginURL = "https://app.gohighlevel.com/"

const (
	emailSelector    = `input[type="email"]`
	passwordSelector = `input[type="password"]`
	loginSubmit      = `button[type="submit"]`
	codeSelector     = `input[name="code"]`
)

// Path fragments that only appear once the console has accepted the login.
// URL match is the sole success signal; absence of an error proves nothing.
var authenticatedPaths = []string{"/dashboard", "/location/", "/launchpad"}

var twoFactorKeywords = []string{"verification", "two-factor", "2fa", "code"}

// LoginRequest carries the session routing for one login attempt. KeepOpen
// defaults to true at the HTTP layer: a login is almost always followed by
// extraction calls against the same session.
type LoginRequest struct {
	SessionID   string `json:"sessionId,omitempty"`
	Geolocation string `json:"geolocation,omitempty"`
	Model       string `json:"model,omitempty"`
	KeepOpen    bool   `json:"keepOpen"`
}

// Service runs GoHighLevel flows against managed automation sessions.
type Service struct {
	manager  *automation.Manager
	bus      *events.Bus
	logger   logging.Logger
	loginURL string
}

func NewService(manager *automation.Manager, bus *events.Bus, loginURL string) *Service {
	if loginURL == "" {
		loginURL = DefaultLoginURL
	}
	return &Service{
		manager:  manager,
		bus:      bus,
		logger:   logging.NewComponentLogger("GHL"),
		loginURL: loginURL,
	}
}

// Login authenticates the session against the GoHighLevel console. The
// credentials are filled by direct field manipulation, never passed through
// a free-text instruction, and the caller's struct is zeroed before Login
// returns, so no copy of the secrets outlives the flow.
// Requires2FA reports that the console asked for a code none was supplied
// for; the caller re-invokes Login on the same session with the code set.
func (s *Service) Login(ctx context.Context, req LoginRequest, creds *Credentials) LoginResult {
	defer creds.zero()

	sess, err := s.manager.Acquire(ctx, req.SessionID, automation.SessionOptions{
		Geolocation: req.Geolocation,
		Model:       req.Model,
	})
	if err != nil {
		return LoginResult{Success: false, SessionID: req.SessionID, Message: err.Error()}
	}

	s.bus.Publish(sess.ID, events.New(events.TypeSessionCreated, sess.ID).
		WithData(map[string]any{"debugUrl": sess.DebugURL(), "reused": sess.Reused}))

	result := s.runLogin(ctx, sess, creds)
	result.SessionID = sess.ID

	if result.Success {
		s.bus.Publish(sess.ID, events.New(events.TypeComplete, sess.ID).
			WithMessage("login complete"))
	} else {
		s.bus.Publish(sess.ID, events.New(events.TypeError, sess.ID).
			WithMessage(result.Message))
	}

	if err := s.manager.Release(ctx, sess, req.KeepOpen); err != nil {
		s.logger.Warn("release session %s: %v", sess.ID, err)
	}
	return result
}

func (s *Service) runLogin(ctx context.Context, sess *automation.ManagedSession, creds *Credentials) LoginResult {
	s.bus.Publish(sess.ID, events.New(events.TypeNavigation, sess.ID).
		WithData(map[string]any{"url": s.loginURL}))
	if err := sess.Navigate(ctx, s.loginURL); err != nil {
		return LoginResult{Message: "could not open login page: " + err.Error()}
	}

	url, err := sess.CurrentURL(ctx)
	if err != nil {
		return LoginResult{Message: "could not read page url: " + err.Error()}
	}
	if isAuthenticatedURL(url) {
		// Already logged in from a previous flow on this session.
		s.locationHop(ctx, sess, creds.LocationID)
		return LoginResult{Success: true, Message: "already authenticated"}
	}

	s.bus.Publish(sess.ID, events.New(events.TypeActionStart, sess.ID).
		WithData(map[string]any{"action": "login"}))

	if err := sess.FillField(ctx, emailSelector, creds.Email); err != nil {
		return LoginResult{Message: "could not fill email field: " + err.Error()}
	}
	if err := sess.FillField(ctx, passwordSelector, creds.Password); err != nil {
		return LoginResult{Message: "could not fill password field: " + err.Error()}
	}
	if err := sess.Submit(ctx, loginSubmit); err != nil {
		return LoginResult{Message: "could not submit login form: " + err.Error()}
	}

	url, err = sess.CurrentURL(ctx)
	if err != nil {
		return LoginResult{Message: "could not read page url after submit: " + err.Error()}
	}

	if !isAuthenticatedURL(url) && s.twoFactorPrompted(ctx, sess) {
		if creds.TwoFactorCode == "" {
			return LoginResult{Requires2FA: true, Message: "two-factor code required"}
		}
		if err := sess.FillField(ctx, codeSelector, strings.TrimSpace(creds.TwoFactorCode)); err != nil {
			return LoginResult{Message: "could not fill verification code: " + err.Error()}
		}
		if err := sess.Submit(ctx, loginSubmit); err != nil {
			return LoginResult{Message: "could not submit verification code: " + err.Error()}
		}
		url, err = sess.CurrentURL(ctx)
		if err != nil {
			return LoginResult{Message: "could not read page url after verification: " + err.Error()}
		}
	}

	if !isAuthenticatedURL(url) {
		return LoginResult{Message: s.pageError(ctx, sess)}
	}

	s.bus.Publish(sess.ID, events.New(events.TypeActionComplete, sess.ID).
		WithData(map[string]any{"action": "login"}))

	s.locationHop(ctx, sess, creds.LocationID)
	return LoginResult{Success: true, Message: "login successful"}
}

func (s *Service) twoFactorPrompted(ctx context.Context, sess *automation.ManagedSession) bool {
	text, err := sess.PageText(ctx)
	if err != nil {
		s.logger.Warn("read page text for 2fa check on session %s: %v", sess.ID, err)
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range twoFactorKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// pageError is a best-effort diagnostic; a failure reading the page must not
// mask the login failure itself.
func (s *Service) pageError(ctx context.Context, sess *automation.ManagedSession) string {
	data, err := sess.Extract(ctx,
		"extract the error or validation message shown on this login page",
		`{"message": "string"}`)
	if err != nil || len(data) == 0 {
		return "could not verify login success"
	}
	var out struct {
		Message string `json:"message"`
	}
	if err := decodeLoose(data, &out); err != nil || out.Message == "" {
		return "could not verify login success"
	}
	return "login failed: " + out.Message
}

// locationHop jumps to the requested tenant dashboard. Non-fatal: the login
// itself already succeeded.
func (s *Service) locationHop(ctx context.Context, sess *automation.ManagedSession, locationID string) {
	if locationID == "" {
		return
	}
	target := strings.TrimSuffix(s.loginURL, "/") + "/v2/location/" + locationID + "/dashboard"
	if err := sess.Navigate(ctx, target); err != nil {
		s.logger.Warn("location hop to %s on session %s: %v", locationID, sess.ID, err)
	}
}

func isAuthenticatedURL(url string) bool {
	for _, p := range authenticatedPaths {
		if strings.Contains(url, p) {
			return true
		}
	}
	return false
}
