// Package testutil provides shared fakes for package tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"skipper/internal/automation"
)

// FakeSession is a scriptable automation.Session. Zero value is usable; set
// the error and script fields to steer behavior.
type FakeSession struct {
	mu sync.Mutex

	SessionID string
	URL       string
	Text      string
	Debug     string
	LiveURL   string

	// Calls records every primitive invocation in order, e.g.
	// "navigate:https://stripe.com", "fill:#email".
	Calls []string

	// SubmitURLs and SubmitTexts are popped on each Submit, updating the
	// current URL / page text. Login-flow tests script page transitions here.
	SubmitURLs  []string
	SubmitTexts []string

	// RedirectURL, when set, becomes the current URL after any Navigate,
	// simulating a server-side redirect.
	RedirectURL string

	ExtractResult json.RawMessage
	ObserveResult json.RawMessage

	NavigateErr error
	ActErr      error
	ObserveErr  error
	ExtractErr  error
	FillErr     error
	SubmitErr   error
	LiveViewErr error
	CloseErr    error

	Closed bool
}

func (s *FakeSession) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, call)
}

// CallLog returns a copy of the recorded calls.
func (s *FakeSession) CallLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Calls))
	copy(out, s.Calls)
	return out
}

func (s *FakeSession) ID() string { return s.SessionID }

func (s *FakeSession) Navigate(ctx context.Context, url string) error {
	s.record("navigate:" + url)
	if s.NavigateErr != nil {
		return s.NavigateErr
	}
	s.mu.Lock()
	if s.RedirectURL != "" {
		s.URL = s.RedirectURL
	} else {
		s.URL = url
	}
	s.mu.Unlock()
	return nil
}

func (s *FakeSession) Act(ctx context.Context, instruction string) error {
	s.record("act:" + instruction)
	return s.ActErr
}

func (s *FakeSession) Observe(ctx context.Context, instruction string) (json.RawMessage, error) {
	s.record("observe:" + instruction)
	if s.ObserveErr != nil {
		return nil, s.ObserveErr
	}
	return s.ObserveResult, nil
}

func (s *FakeSession) Extract(ctx context.Context, instruction string, schemaHint string) (json.RawMessage, error) {
	s.record("extract:" + instruction)
	if s.ExtractErr != nil {
		return nil, s.ExtractErr
	}
	return s.ExtractResult, nil
}

func (s *FakeSession) CurrentURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.URL, nil
}

func (s *FakeSession) PageText(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Text, nil
}

func (s *FakeSession) FillField(ctx context.Context, selector, value string) error {
	s.record("fill:" + selector)
	return s.FillErr
}

func (s *FakeSession) Submit(ctx context.Context, selector string) error {
	s.record("submit:" + selector)
	if s.SubmitErr != nil {
		return s.SubmitErr
	}
	s.mu.Lock()
	if len(s.SubmitURLs) > 0 {
		s.URL = s.SubmitURLs[0]
		s.SubmitURLs = s.SubmitURLs[1:]
	}
	if len(s.SubmitTexts) > 0 {
		s.Text = s.SubmitTexts[0]
		s.SubmitTexts = s.SubmitTexts[1:]
	}
	s.mu.Unlock()
	return nil
}

func (s *FakeSession) DebugURL() string { return s.Debug }

func (s *FakeSession) LiveViewURL(ctx context.Context) (string, error) {
	s.record("liveview")
	if s.LiveViewErr != nil {
		return "", s.LiveViewErr
	}
	return s.LiveURL, nil
}

func (s *FakeSession) Close(ctx context.Context) error {
	s.record("close")
	s.Closed = true
	return s.CloseErr
}

// FakeProvider hands out FakeSessions. When Next is non-nil each CreateSession
// pops from it; otherwise sessions get sequential ids.
type FakeProvider struct {
	mu sync.Mutex

	CreateErr error
	Next      []*FakeSession

	Created  []*FakeSession
	LastOpts automation.SessionOptions

	counter int
}

func (p *FakeProvider) CreateSession(ctx context.Context, opts automation.SessionOptions) (automation.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.LastOpts = opts
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}

	var sess *FakeSession
	if len(p.Next) > 0 {
		sess = p.Next[0]
		p.Next = p.Next[1:]
	} else {
		p.counter++
		sess = &FakeSession{
			SessionID: fmt.Sprintf("sess-%d", p.counter),
			Debug:     fmt.Sprintf("https://provider.test/debug/%d", p.counter),
			LiveURL:   fmt.Sprintf("https://provider.test/live/%d", p.counter),
		}
	}
	p.Created = append(p.Created, sess)
	return sess, nil
}
