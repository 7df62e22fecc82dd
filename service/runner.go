package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"autophish/config"
	"autophish/models"
	"autophish/reconcile"
	"autophish/templates"
	"autophish/tracker"
	"autophish/utils"
)

// API is everything a run needs from the campaign server.
type API interface {
	reconcile.API
	CampaignAPI
	Ping(ctx context.Context) error
}

// Runner reconciles the configured resources, then launches one campaign per
// template and sending profile.
type Runner struct {
	config     *config.Config
	api        API
	dispatcher *Dispatcher
	parser     templates.Parser
	tracker    *tracker.Tracker
	logger     *zap.Logger

	groups    *reconcile.Reconciler[models.Group]
	profiles  *reconcile.Reconciler[models.SendingProfile]
	pages     *reconcile.Reconciler[models.Page]
	templates *reconcile.Reconciler[models.Template]
}

func NewRunner(cfg *config.Config, api API, notifier Notifier, tr *tracker.Tracker, logger *zap.Logger, opts ...DispatcherOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		config:     cfg,
		api:        api,
		dispatcher: NewDispatcher(cfg, api, notifier, logger, opts...),
		parser: templates.Parser{
			AssumeEncoded: cfg.Template.IsBase64,
			SkipAmbiguous: cfg.SkipAmbiguousTemplates(),
		},
		tracker:   tr,
		logger:    logger,
		groups:    reconcile.Groups(api, logger),
		profiles:  reconcile.SendingProfiles(api, logger),
		pages:     reconcile.Pages(api, logger),
		templates: reconcile.Templates(api, logger),
	}
}

// Run returns an error only when the campaign server cannot be reached.
// Every other failure is recorded in the tracker and the run carries on.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.api.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach campaign server %s: %w", r.config.Host, err)
	}

	groupID := r.reconcileGroup(ctx)
	profiles := r.reconcileProfiles(ctx)
	pageID := r.reconcilePage(ctx)
	tmpls := r.reconcileTemplates(ctx)

	r.logger.Info("Reconciliation finished",
		zap.Int64("group_id", groupID),
		zap.Int("profiles", len(profiles)),
		zap.Int64("page_id", pageID),
		zap.Int("templates", len(tmpls)))

	for _, tmpl := range tmpls {
		for _, outcome := range r.dispatcher.DispatchAll(ctx, tmpl, groupID, profiles, pageID) {
			r.tracker.RecordDispatch(outcome)
		}
	}
	return nil
}

func (r *Runner) reconcileGroup(ctx context.Context) int64 {
	group, err := r.groups.GetOrCreate(ctx, models.Group{
		Name:    r.config.Group.Name,
		Targets: r.config.Group.Targets,
	})
	if err != nil {
		r.tracker.RecordFailure("group "+r.config.Group.Name, err)
		return 0
	}
	return group.ID
}

func (r *Runner) reconcileProfiles(ctx context.Context) []ProfileRef {
	var refs []ProfileRef
	for _, spec := range r.config.SMTPProfiles {
		profile, err := r.profiles.GetOrCreate(ctx, spec.SendingProfile())
		if err != nil {
			r.tracker.RecordFailure("sending profile "+spec.Name, err)
			continue
		}
		refs = append(refs, ProfileRef{ID: profile.ID, Spec: spec})
	}
	return refs
}

func (r *Runner) reconcilePage(ctx context.Context) int64 {
	lp := r.config.LandingPage
	html := lp.HTML
	if lp.IsBase64 {
		decoded, err := utils.Decode(html)
		if err != nil {
			r.tracker.RecordFailure("landing page "+lp.Name, err)
			return 0
		}
		html = decoded
	}
	page, err := r.pages.GetOrCreate(ctx, models.Page{
		Name:               lp.Name,
		HTML:               html,
		CaptureCredentials: lp.CaptureCredentials,
		CapturePasswords:   lp.CapturePasswords,
		RedirectURL:        lp.RedirectURL,
	})
	if err != nil {
		r.tracker.RecordFailure("landing page "+lp.Name, err)
		return 0
	}
	return page.ID
}

func (r *Runner) reconcileTemplates(ctx context.Context) []models.Template {
	files, err := templates.LoadDir(r.config.Template.Dir, r.config.Template.Extension)
	if err != nil {
		r.tracker.RecordFailure("template directory "+r.config.Template.Dir, err)
		return nil
	}

	var out []models.Template
	for _, file := range files {
		unit := "template " + file.Name
		spec, err := r.parser.Parse(file.Content)
		if errors.Is(err, templates.ErrSkipped) {
			r.tracker.RecordSkip(unit, err.Error())
			continue
		}
		if err != nil {
			r.tracker.RecordFailure(unit, err)
			continue
		}
		tmpl, err := r.templates.Upsert(ctx, spec)
		if err != nil {
			r.tracker.RecordFailure(unit, err)
			continue
		}
		out = append(out, tmpl)
	}
	return out
}
