package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"autophish/config"
	"autophish/models"
	"autophish/reconcile"
)

// ErrMissingReference is returned for a dispatch whose group or landing page
// could not be reconciled earlier in the run.
var ErrMissingReference = errors.New("campaign references an object that was not reconciled")

// CampaignAPI is the subset of the Gophish client used to launch campaigns.
type CampaignAPI interface {
	Group(ctx context.Context, id int64) (models.Group, error)
	SendingProfile(ctx context.Context, id int64) (models.SendingProfile, error)
	Page(ctx context.Context, id int64) (models.Page, error)
	CreateCampaign(ctx context.Context, c models.Campaign) (models.Campaign, error)
}

type Notifier interface {
	Notify(ctx context.Context, profile config.SMTPProfile, to, subject, body string) error
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ProfileRef pairs a reconciled sending profile id with its local definition,
// which the confirmation mail is sent through.
type ProfileRef struct {
	ID   int64
	Spec config.SMTPProfile
}

type Dispatcher struct {
	api         CampaignAPI
	notifier    Notifier
	sleep       Sleeper
	delay       time.Duration
	campaignURL string
	recipient   string
	logger      *zap.Logger
	now         func() time.Time

	// paceNext is set by a successful launch and consumed by the next
	// dispatch, which may belong to a later DispatchAll call.
	paceNext bool
}

type DispatcherOption func(*Dispatcher)

func WithSleeper(s Sleeper) DispatcherOption {
	return func(d *Dispatcher) { d.sleep = s }
}

func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(cfg *config.Config, api CampaignAPI, notifier Notifier, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		api:         api,
		notifier:    notifier,
		sleep:       SleepContext,
		delay:       cfg.PacingDelay(),
		campaignURL: cfg.CampaignURL,
		recipient:   cfg.RecipientEmail,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CampaignName is the name given to every campaign launched with tmpl.
func CampaignName(tmpl models.Template) string {
	return "Campaign with template " + tmpl.Subject
}

// DispatchAll launches one campaign per profile, strictly in order. A failed
// profile is recorded and the loop moves on. Each successful launch is
// followed by a confirmation mail, and the pacing delay runs before the
// dispatch after it. No delay trails the last dispatch of a run.
func (d *Dispatcher) DispatchAll(ctx context.Context, tmpl models.Template, groupID int64, profiles []ProfileRef, pageID int64) []models.DispatchOutcome {
	outcomes := make([]models.DispatchOutcome, 0, len(profiles))
	for _, profile := range profiles {
		if d.paceNext {
			d.paceNext = false
			d.logger.Debug("Pacing before next dispatch", zap.Duration("delay", d.delay))
			if err := d.sleep(ctx, d.delay); err != nil {
				d.logger.Warn("Pacing delay interrupted", zap.Error(err))
			}
		}
		if ctx.Err() != nil {
			d.logger.Warn("Dispatch interrupted", zap.String("template", tmpl.Name), zap.Error(ctx.Err()))
			break
		}

		req := models.CampaignRequest{
			Name:        CampaignName(tmpl),
			TemplateRef: tmpl.ID,
			PageRef:     pageID,
			SMTPRef:     profile.ID,
			GroupRefs:   []int64{groupID},
			TargetURL:   d.campaignURL,
		}
		outcome := models.DispatchOutcome{
			Template:  tmpl.Name,
			ProfileID: profile.ID,
			Profile:   profile.Spec.Name,
			At:        d.now(),
		}
		logger := d.logger.With(zap.String("template", tmpl.Name), zap.String("profile", profile.Spec.Name))

		campaign, err := d.submit(ctx, req, tmpl)
		if err != nil {
			outcome.Status = models.DispatchFailed
			outcome.Err = err
			logger.Error("Failed to create campaign", zap.Error(err))
			outcomes = append(outcomes, outcome)
			continue
		}

		outcome.Status = models.DispatchSent
		outcome.CampaignID = campaign.ID
		logger.Info("Campaign created", zap.String("campaign", campaign.Name), zap.Int64("campaign_id", campaign.ID))

		subject, body := confirmation(campaign, outcome.At)
		if err := d.notifier.Notify(ctx, profile.Spec, d.recipient, subject, body); err != nil {
			logger.Error("Failed to send notification", zap.Error(err))
		} else {
			outcome.Notified = true
		}
		outcomes = append(outcomes, outcome)
		d.paceNext = true
	}
	return outcomes
}

// submit resolves the request's references by id, as campaigns refer to
// objects by name, and creates the campaign.
func (d *Dispatcher) submit(ctx context.Context, req models.CampaignRequest, tmpl models.Template) (models.Campaign, error) {
	if req.TemplateRef == 0 || req.PageRef == 0 || req.SMTPRef == 0 {
		return models.Campaign{}, fmt.Errorf("%w: template=%d page=%d smtp=%d", ErrMissingReference, req.TemplateRef, req.PageRef, req.SMTPRef)
	}

	groups := make([]models.NameRef, 0, len(req.GroupRefs))
	for _, id := range req.GroupRefs {
		if id == 0 {
			return models.Campaign{}, fmt.Errorf("%w: group=0", ErrMissingReference)
		}
		group, err := d.api.Group(ctx, id)
		if err != nil {
			return models.Campaign{}, fmt.Errorf("failed to fetch group %d: %w", id, err)
		}
		groups = append(groups, models.NameRef{Name: group.Name})
	}
	smtp, err := d.api.SendingProfile(ctx, req.SMTPRef)
	if err != nil {
		return models.Campaign{}, fmt.Errorf("failed to fetch sending profile %d: %w", req.SMTPRef, err)
	}
	page, err := d.api.Page(ctx, req.PageRef)
	if err != nil {
		return models.Campaign{}, fmt.Errorf("failed to fetch landing page %d: %w", req.PageRef, err)
	}

	created, err := d.api.CreateCampaign(ctx, models.Campaign{
		Name:       req.Name,
		Template:   models.NameRef{Name: tmpl.Name},
		Page:       models.NameRef{Name: page.Name},
		SMTP:       models.NameRef{Name: smtp.Name},
		Groups:     groups,
		URL:        req.TargetURL,
		LaunchDate: d.now().UTC(),
	})
	if err != nil {
		return created, fmt.Errorf("failed to create campaign %q: %w", req.Name, err)
	}
	if created.ID == 0 {
		return created, fmt.Errorf("%w: campaign %q", reconcile.ErrCreateRejected, req.Name)
	}
	if created.Name == "" {
		created.Name = req.Name
	}
	return created, nil
}

func confirmation(c models.Campaign, at time.Time) (string, string) {
	groups := make([]string, 0, len(c.Groups))
	for _, g := range c.Groups {
		groups = append(groups, g.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Campaign %q was launched.\n\n", c.Name)
	fmt.Fprintf(&b, "Campaign ID:     %d\n", c.ID)
	fmt.Fprintf(&b, "Template:        %s\n", c.Template.Name)
	fmt.Fprintf(&b, "Sending profile: %s\n", c.SMTP.Name)
	fmt.Fprintf(&b, "Landing page:    %s\n", c.Page.Name)
	fmt.Fprintf(&b, "Groups:          %s\n", strings.Join(groups, ", "))
	fmt.Fprintf(&b, "URL:             %s\n", c.URL)
	fmt.Fprintf(&b, "Launched at:     %s\n", at.UTC().Format(time.RFC3339))
	return "Campaign launched: " + c.Name, b.String()
}
