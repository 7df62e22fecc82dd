package models

import "time"

// Template is an email template stored on the campaign server. Name doubles
// as the lookup key and is set to the subject line.
type Template struct {
	ID           int64     `json:"id,omitempty"`
	Name         string    `json:"name"`
	Subject      string    `json:"subject"`
	Text         string    `json:"text"`
	HTML         string    `json:"html"`
	ModifiedDate time.Time `json:"modified_date"`
}

func (t Template) GetID() int64    { return t.ID }
func (t Template) GetName() string { return t.Name }

// Target is a single recipient inside a group.
type Target struct {
	Email     string `json:"email" yaml:"email"`
	FirstName string `json:"first_name" yaml:"first_name"`
	LastName  string `json:"last_name" yaml:"last_name"`
	Position  string `json:"position" yaml:"position"`
}

type Group struct {
	ID           int64     `json:"id,omitempty"`
	Name         string    `json:"name"`
	Targets      []Target  `json:"targets"`
	ModifiedDate time.Time `json:"modified_date"`
}

func (g Group) GetID() int64    { return g.ID }
func (g Group) GetName() string { return g.Name }

// Header is a custom header added by a sending profile.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SendingProfile is an outbound SMTP configuration usable by campaigns.
type SendingProfile struct {
	ID               int64     `json:"id,omitempty"`
	Name             string    `json:"name"`
	InterfaceType    string    `json:"interface_type"`
	Host             string    `json:"host"`
	FromAddress      string    `json:"from_address"`
	Username         string    `json:"username"`
	Password         string    `json:"password"`
	IgnoreCertErrors bool      `json:"ignore_cert_errors"`
	Headers          []Header  `json:"headers"`
	ModifiedDate     time.Time `json:"modified_date"`
}

func (s SendingProfile) GetID() int64    { return s.ID }
func (s SendingProfile) GetName() string { return s.Name }

// Page is a landing page recipients reach after interacting with a campaign.
type Page struct {
	ID                 int64     `json:"id,omitempty"`
	Name               string    `json:"name"`
	HTML               string    `json:"html"`
	CaptureCredentials bool      `json:"capture_credentials"`
	CapturePasswords   bool      `json:"capture_passwords"`
	RedirectURL        string    `json:"redirect_url"`
	ModifiedDate       time.Time `json:"modified_date"`
}

func (p Page) GetID() int64    { return p.ID }
func (p Page) GetName() string { return p.Name }

// NameRef references a remote object by name, the form campaigns use.
type NameRef struct {
	Name string `json:"name"`
}

type Campaign struct {
	ID          int64     `json:"id,omitempty"`
	Name        string    `json:"name"`
	Template    NameRef   `json:"template"`
	Page        NameRef   `json:"page"`
	SMTP        NameRef   `json:"smtp"`
	Groups      []NameRef `json:"groups"`
	URL         string    `json:"url"`
	Status      string    `json:"status,omitempty"`
	CreatedDate time.Time `json:"created_date"`
	LaunchDate  time.Time `json:"launch_date"`
}

// CampaignRequest names the objects a campaign is launched with by id.
type CampaignRequest struct {
	Name        string
	TemplateRef int64
	PageRef     int64
	SMTPRef     int64
	GroupRefs   []int64
	TargetURL   string
}
