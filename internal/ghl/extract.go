package ghl

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"skipper/internal/automation"
)

// Extraction operations are best-effort reads against a live third-party UI.
// Any fault at any step degrades to the type's zero value; callers treat an
// empty result as "nothing found or a transient fault", never as a hard error.

type extractTarget struct {
	// pathFragment identifies the target view in the current URL; navigation
	// is skipped when the session is already there.
	pathFragment string
	url          string
	instruction  string
	schemaHint   string
}

// ExtractContacts pulls the contact list from the contacts view.
func (s *Service) ExtractContacts(ctx context.Context, sess *automation.ManagedSession) []Contact {
	var out struct {
		Items []Contact `json:"items"`
	}
	s.extract(ctx, sess, extractTarget{
		pathFragment: "/contacts",
		url:          s.viewURL("/contacts/smart_list/All"),
		instruction:  "extract every contact row visible in the list with name, email, phone and tags",
		schemaHint:   `{"items": [{"name": "string", "email": "string", "phone": "string", "tags": ["string"]}]}`,
	}, &out)
	return out.Items
}

// ExtractContactDetail opens one contact by name and pulls its detail pane.
func (s *Service) ExtractContactDetail(ctx context.Context, sess *automation.ManagedSession, name string) *ContactDetail {
	target := extractTarget{
		pathFragment: "/contacts",
		url:          s.viewURL("/contacts/smart_list/All"),
		instruction:  "extract the full detail of the currently opened contact",
		schemaHint:   `{"item": {"name": "string", "email": "string", "phone": "string", "source": "string", "owner": "string", "lastActivity": "string", "notes": "string"}}`,
	}

	if !s.ensureView(ctx, sess, target) {
		return nil
	}
	// Filter step: open the named contact before extracting.
	if err := sess.Act(ctx, "search for the contact named "+name+" and open it"); err != nil {
		s.logger.Warn("open contact %q on session %s: %v", name, sess.ID, err)
		return nil
	}

	var out struct {
		Item *ContactDetail `json:"item"`
	}
	if !s.extractInto(ctx, sess, target, &out) {
		return nil
	}
	return out.Item
}

// ExtractWorkflows pulls the automation workflow list.
func (s *Service) ExtractWorkflows(ctx context.Context, sess *automation.ManagedSession) []Workflow {
	var out struct {
		Items []Workflow `json:"items"`
	}
	s.extract(ctx, sess, extractTarget{
		pathFragment: "/automation",
		url:          s.viewURL("/automation/workflows"),
		instruction:  "extract every workflow row with name, status, enrolled count and completed count",
		schemaHint:   `{"items": [{"name": "string", "status": "string", "enrolled": 0, "completed": 0}]}`,
	}, &out)
	return out.Items
}

// ExtractPipelines pulls the opportunity pipelines and their stages.
func (s *Service) ExtractPipelines(ctx context.Context, sess *automation.ManagedSession) []Pipeline {
	var out struct {
		Items []Pipeline `json:"items"`
	}
	s.extract(ctx, sess, extractTarget{
		pathFragment: "/opportunities",
		url:          s.viewURL("/opportunities/list"),
		instruction:  "extract every pipeline with its name and ordered stage names",
		schemaHint:   `{"items": [{"name": "string", "stages": ["string"]}]}`,
	}, &out)
	return out.Items
}

// ExtractDashboardMetrics pulls the headline numbers from the dashboard.
func (s *Service) ExtractDashboardMetrics(ctx context.Context, sess *automation.ManagedSession) *DashboardMetrics {
	var out struct {
		Item *DashboardMetrics `json:"item"`
	}
	s.extract(ctx, sess, extractTarget{
		pathFragment: "/dashboard",
		url:          s.viewURL("/dashboard"),
		instruction:  "extract the dashboard metrics: opportunity count, pipeline value, conversion rate, task count",
		schemaHint:   `{"item": {"opportunityCount": 0, "pipelineValue": "string", "conversionRate": "string", "taskCount": 0}}`,
	}, &out)
	return out.Item
}

// ExtractCampaignStats pulls delivery stats for the listed campaigns.
func (s *Service) ExtractCampaignStats(ctx context.Context, sess *automation.ManagedSession) []CampaignStats {
	var out struct {
		Items []CampaignStats `json:"items"`
	}
	s.extract(ctx, sess, extractTarget{
		pathFragment: "/marketing",
		url:          s.viewURL("/marketing/emails/campaigns"),
		instruction:  "extract every campaign row with name, sent, delivered, opened and clicked counts",
		schemaHint:   `{"items": [{"name": "string", "sent": 0, "delivered": 0, "opened": 0, "clicked": 0}]}`,
	}, &out)
	return out.Items
}

func (s *Service) extract(ctx context.Context, sess *automation.ManagedSession, target extractTarget, out any) {
	if !s.ensureView(ctx, sess, target) {
		return
	}
	s.extractInto(ctx, sess, target, out)
}

// ensureView navigates to the target view unless the session is already on
// it. A navigation fault ends the operation; the zero value stands.
func (s *Service) ensureView(ctx context.Context, sess *automation.ManagedSession, target extractTarget) bool {
	url, err := sess.CurrentURL(ctx)
	if err != nil {
		s.logger.Warn("read url on session %s: %v", sess.ID, err)
		return false
	}
	if strings.Contains(url, target.pathFragment) {
		return true
	}
	if err := sess.Navigate(ctx, target.url); err != nil {
		s.logger.Warn("navigate to %s on session %s: %v", target.url, sess.ID, err)
		return false
	}
	return true
}

func (s *Service) extractInto(ctx context.Context, sess *automation.ManagedSession, target extractTarget, out any) bool {
	data, err := sess.Extract(ctx, target.instruction, target.schemaHint)
	if err != nil {
		s.logger.Warn("extract on session %s: %v", sess.ID, err)
		return false
	}
	if err := decodeLoose(data, out); err != nil {
		s.logger.Warn("decode extraction on session %s: %v", sess.ID, err)
		return false
	}
	return true
}

func (s *Service) viewURL(path string) string {
	return strings.TrimSuffix(s.loginURL, "/") + path
}

// decodeLoose unmarshals model-produced JSON, running it through jsonrepair
// first when it does not parse as-is.
func decodeLoose(data json.RawMessage, out any) error {
	if err := json.Unmarshal(data, out); err == nil {
		return nil
	}
	fixed, err := jsonrepair.JSONRepair(string(data))
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), out)
}
