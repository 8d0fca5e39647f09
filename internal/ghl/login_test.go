package ghl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skipper/internal/automation"
	"skipper/internal/events"
	"skipper/internal/storage"
	"skipper/internal/testutil"
)

func newService(sess *testutil.FakeSession) (*Service, *testutil.FakeProvider) {
	provider := &testutil.FakeProvider{}
	if sess != nil {
		provider.Next = []*testutil.FakeSession{sess}
	}
	manager := automation.NewManager(provider, storage.NewMemoryStore(), nil)
	return NewService(manager, events.NewBus(), ""), provider
}

func TestLogin_SuccessByURLPattern(t *testing.T) {
	sess := &testutil.FakeSession{
		SessionID:  "sess-a",
		SubmitURLs: []string{"https://app.gohighlevel.com/launchpad"},
	}
	svc, _ := newService(sess)

	result := svc.Login(context.Background(), LoginRequest{KeepOpen: true},
		&Credentials{Email: "ops@example.com", Password: "hunter22"})

	assert.True(t, result.Success)
	assert.False(t, result.Requires2FA)
	assert.Equal(t, "sess-a", result.SessionID)

	calls := sess.CallLog()
	assert.Contains(t, calls, "fill:"+emailSelector)
	assert.Contains(t, calls, "fill:"+passwordSelector)
	assert.Contains(t, calls, "submit:"+loginSubmit)
}

func TestLogin_ShortCircuitWhenAlreadyAuthenticated(t *testing.T) {
	sess := &testutil.FakeSession{
		SessionID:   "sess-a",
		RedirectURL: "https://app.gohighlevel.com/location/loc-1/dashboard",
	}
	svc, _ := newService(sess)

	result := svc.Login(context.Background(), LoginRequest{KeepOpen: true},
		&Credentials{Email: "ops@example.com", Password: "hunter22"})

	require.True(t, result.Success)
	// No credentials were filled; the session was already inside the console.
	for _, call := range sess.CallLog() {
		assert.NotContains(t, call, "fill:")
		assert.NotContains(t, call, "submit:")
	}
}

func TestLogin_TwoFactorPromptWithoutCode(t *testing.T) {
	sess := &testutil.FakeSession{
		SessionID:   "sess-a",
		SubmitURLs:  []string{"https://app.gohighlevel.com/verify"},
		SubmitTexts: []string{"Enter the verification code we sent to your device"},
	}
	svc, _ := newService(sess)

	result := svc.Login(context.Background(), LoginRequest{KeepOpen: true},
		&Credentials{Email: "ops@example.com", Password: "hunter22"})

	assert.False(t, result.Success)
	assert.True(t, result.Requires2FA)
}

func TestLogin_TwoFactorCodeCompletesFlow(t *testing.T) {
	sess := &testutil.FakeSession{
		SessionID: "sess-a",
		SubmitURLs: []string{
			"https://app.gohighlevel.com/verify",
			"https://app.gohighlevel.com/location/loc-1/dashboard",
		},
		SubmitTexts: []string{"Enter the verification code we sent to your device", ""},
	}
	svc, _ := newService(sess)

	result := svc.Login(context.Background(), LoginRequest{KeepOpen: true},
		&Credentials{Email: "ops@example.com", Password: "hunter22", TwoFactorCode: "483920"})

	assert.True(t, result.Success)
	assert.False(t, result.Requires2FA)
	assert.Contains(t, sess.CallLog(), "fill:"+codeSelector)
}

func TestLogin_FailureExtractsOnPageError(t *testing.T) {
	sess := &testutil.FakeSession{
		SessionID:     "sess-a",
		SubmitURLs:    []string{"https://app.gohighlevel.com/"},
		SubmitTexts:   []string{"Invalid email or password"},
		ExtractResult: []byte(`{"message": "Invalid email or password"}`),
	}
	svc, _ := newService(sess)

	result := svc.Login(context.Background(), LoginRequest{},
		&Credentials{Email: "ops@example.com", Password: "wrong"})

	assert.False(t, result.Success)
	assert.False(t, result.Requires2FA)
	assert.Equal(t, "login failed: Invalid email or password", result.Message)
}

func TestLogin_DiagnosticExtractionFaultFallsBackToGenericMessage(t *testing.T) {
	sess := &testutil.FakeSession{
		SessionID:   "sess-a",
		SubmitURLs:  []string{"https://app.gohighlevel.com/"},
		SubmitTexts: []string{"Invalid email or password"},
		ExtractErr:  errors.New("extraction timed out"),
	}
	svc, _ := newService(sess)

	result := svc.Login(context.Background(), LoginRequest{},
		&Credentials{Email: "ops@example.com", Password: "wrong"})

	assert.False(t, result.Success)
	assert.Equal(t, "could not verify login success", result.Message)
}

func TestLogin_LocationHopIsNonFatal(t *testing.T) {
	sess := &testutil.FakeSession{
		SessionID:  "sess-a",
		SubmitURLs: []string{"https://app.gohighlevel.com/launchpad"},
	}
	svc, _ := newService(sess)

	result := svc.Login(context.Background(), LoginRequest{KeepOpen: true},
		&Credentials{Email: "ops@example.com", Password: "hunter22", LocationID: "loc-1"})

	require.True(t, result.Success)
	assert.Contains(t, sess.CallLog(),
		"navigate:https://app.gohighlevel.com/v2/location/loc-1/dashboard")
}

func TestLogin_ZeroesCallerCredentials(t *testing.T) {
	sess := &testutil.FakeSession{
		SessionID:  "sess-a",
		SubmitURLs: []string{"https://app.gohighlevel.com/launchpad"},
	}
	svc, _ := newService(sess)

	creds := Credentials{
		Email:         "ops@example.com",
		Password:      "hunter22",
		LocationID:    "loc-1",
		TwoFactorCode: "483920",
	}
	result := svc.Login(context.Background(), LoginRequest{KeepOpen: true}, &creds)

	require.True(t, result.Success)
	assert.Equal(t, Credentials{}, creds, "secrets must not outlive the flow")
}

func TestLogin_KeepOpenControlsSessionClose(t *testing.T) {
	sess := &testutil.FakeSession{
		SessionID:  "sess-a",
		SubmitURLs: []string{"https://app.gohighlevel.com/launchpad"},
	}
	svc, _ := newService(sess)

	result := svc.Login(context.Background(), LoginRequest{},
		&Credentials{Email: "ops@example.com", Password: "hunter22"})

	require.True(t, result.Success)
	assert.True(t, sess.Closed)
}
