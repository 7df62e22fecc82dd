package models

import "time"

// DispatchStatus is the result of one campaign dispatch attempt.
type DispatchStatus string

const (
	DispatchSent   DispatchStatus = "sent"
	DispatchFailed DispatchStatus = "failed"
)

// DispatchOutcome records one (template, sending profile) dispatch.
type DispatchOutcome struct {
	Template   string         `json:"template"`
	ProfileID  int64          `json:"profile_id"`
	Profile    string         `json:"profile"`
	CampaignID int64          `json:"campaign_id,omitempty"`
	Status     DispatchStatus `json:"status"`
	Notified   bool           `json:"notified"`
	Err        error          `json:"-"`
	At         time.Time      `json:"at"`
}

func (o DispatchOutcome) Succeeded() bool {
	return o.Status == DispatchSent
}
