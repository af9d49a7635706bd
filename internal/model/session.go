package model

import "time"

// Step represents the current position in the scan-to-meeting workflow.
type Step string

const (
	StepLanding      Step = "landing"
	StepCapture      Step = "capture"
	StepProcessing   Step = "processing"
	StepResult       Step = "result"
	StepSelfie       Step = "selfie"
	StepEmailDraft   Step = "email_draft"
	StepMeeting      Step = "meeting_scheduler"
	StepConfirmation Step = "confirmation"
)

// ProcessingStatus reflects backend-side completion of enrichment,
// independent of Step.
type ProcessingStatus string

const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingActive    ProcessingStatus = "processing"
	ProcessingCompleted ProcessingStatus = "completed"
	ProcessingFailed    ProcessingStatus = "failed"
)

// Contact is the normalized contact record extracted from a scanned card.
// An empty string means the field was not found in any response so far.
type Contact struct {
	Name    string `json:"name,omitempty"`
	Title   string `json:"title,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
}

// Empty reports whether no contact field was extracted.
func (c Contact) Empty() bool {
	return c == Contact{}
}

// CompanyInsight is the normalized company enrichment record. Fields fill in
// independently as enrichment data trickles in. Numeric-looking fields
// (employee count, revenue) are opaque display strings: the upstream service
// does not fix their formatting.
type CompanyInsight struct {
	Description   string `json:"description,omitempty"`
	Products      string `json:"products,omitempty"`
	Industry      string `json:"industry,omitempty"`
	EmployeeCount string `json:"employee_count,omitempty"`
	Revenue       string `json:"revenue,omitempty"`
	MarketShare   string `json:"market_share,omitempty"`
	Investors     string `json:"investors,omitempty"`
	Summary       string `json:"summary,omitempty"`
	OtherInfo     string `json:"other_info,omitempty"`
}

// Empty reports whether no insight field was extracted.
func (ci CompanyInsight) Empty() bool {
	return ci == CompanyInsight{}
}

// EnrichmentComplete reports whether any indicator field is present. The
// upstream service has no explicit done flag; presence of any one of these
// fields is the agreed completion signal.
func (ci CompanyInsight) EnrichmentComplete() bool {
	return ci.Description != "" || ci.Industry != "" || ci.EmployeeCount != "" || ci.Revenue != ""
}

// Session is the aggregate root for one scan-to-meeting workflow.
type Session struct {
	ID            string           `json:"id"`
	Step          Step             `json:"step"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Contact       Contact          `json:"contact"`
	Insight       CompanyInsight   `json:"company_insight"`
	Processing    ProcessingStatus `json:"processing_status"`
	Error         string           `json:"error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// NewSession returns an empty session positioned at the landing step.
func NewSession(id string) Session {
	now := time.Now().UTC()
	return Session{
		ID:         id,
		Step:       StepLanding,
		Processing: ProcessingPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
