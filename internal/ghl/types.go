// Package ghl automates a GoHighLevel account: logging into the web console
// and pulling structured data back out of its views.
package ghl

// Credentials is the login input. The flow fills these into the page by
// direct field manipulation and zeroes the struct when it returns; nothing
// here may ever reach a log line or an event payload.
type Credentials struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	LocationID    string `json:"locationId,omitempty"`
	TwoFactorCode string `json:"twoFactorCode,omitempty"`
}

func (c *Credentials) zero() {
	c.Email = ""
	c.Password = ""
	c.LocationID = ""
	c.TwoFactorCode = ""
}

// LoginResult is the definite outcome of one login attempt. Requires2FA is a
// distinct outcome, not a failure of the system: the caller should re-prompt
// for a code and call Login again with it.
type LoginResult struct {
	Success     bool   `json:"success"`
	Requires2FA bool   `json:"requires2FA,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Contact is one CRM contact row.
type Contact struct {
	Name  string   `json:"name"`
	Email string   `json:"email,omitempty"`
	Phone string   `json:"phone,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// ContactDetail is the expanded view of a single contact.
type ContactDetail struct {
	Contact
	Source       string `json:"source,omitempty"`
	Owner        string `json:"owner,omitempty"`
	LastActivity string `json:"lastActivity,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// Workflow is one automation workflow row.
type Workflow struct {
	Name      string `json:"name"`
	Status    string `json:"status,omitempty"`
	Enrolled  int    `json:"enrolled,omitempty"`
	Completed int    `json:"completed,omitempty"`
}

// Pipeline is one opportunity pipeline with its stages.
type Pipeline struct {
	Name   string   `json:"name"`
	Stages []string `json:"stages,omitempty"`
}

// DashboardMetrics is the headline numbers on the location dashboard.
type DashboardMetrics struct {
	OpportunityCount int    `json:"opportunityCount,omitempty"`
	PipelineValue    string `json:"pipelineValue,omitempty"`
	ConversionRate   string `json:"conversionRate,omitempty"`
	TaskCount        int    `json:"taskCount,omitempty"`
}

// CampaignStats is one email/SMS campaign's delivery numbers.
type CampaignStats struct {
	Name      string `json:"name"`
	Sent      int    `json:"sent,omitempty"`
	Delivered int    `json:"delivered,omitempty"`
	Opened    int    `json:"opened,omitempty"`
	Clicked   int    `json:"clicked,omitempty"`
}
