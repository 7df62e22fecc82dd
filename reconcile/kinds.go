package reconcile

import (
	"context"

	"go.uber.org/zap"

	"autophish/models"
)

// API is the subset of the Gophish client the reconcilers need.
type API interface {
	Templates(ctx context.Context) ([]models.Template, error)
	CreateTemplate(ctx context.Context, t models.Template) (models.Template, error)
	UpdateTemplate(ctx context.Context, t models.Template) (models.Template, error)
	Groups(ctx context.Context) ([]models.Group, error)
	CreateGroup(ctx context.Context, g models.Group) (models.Group, error)
	SendingProfiles(ctx context.Context) ([]models.SendingProfile, error)
	CreateSendingProfile(ctx context.Context, s models.SendingProfile) (models.SendingProfile, error)
	Pages(ctx context.Context) ([]models.Page, error)
	CreatePage(ctx context.Context, p models.Page) (models.Page, error)
}

// Templates are overwritten on name conflict since bodies evolve between runs.
func Templates(api API, logger *zap.Logger) *Reconciler[models.Template] {
	return New(Kind[models.Template]{
		Name:   "template",
		List:   api.Templates,
		Create: api.CreateTemplate,
		Update: func(ctx context.Context, id int64, spec models.Template) (models.Template, error) {
			spec.ID = id
			return api.UpdateTemplate(ctx, spec)
		},
	}, logger)
}

func Groups(api API, logger *zap.Logger) *Reconciler[models.Group] {
	return New(Kind[models.Group]{
		Name:   "group",
		List:   api.Groups,
		Create: api.CreateGroup,
	}, logger)
}

func SendingProfiles(api API, logger *zap.Logger) *Reconciler[models.SendingProfile] {
	return New(Kind[models.SendingProfile]{
		Name:   "sending profile",
		List:   api.SendingProfiles,
		Create: api.CreateSendingProfile,
	}, logger)
}

func Pages(api API, logger *zap.Logger) *Reconciler[models.Page] {
	return New(Kind[models.Page]{
		Name:   "landing page",
		List:   api.Pages,
		Create: api.CreatePage,
	}, logger)
}
