package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"autophish/config"
	"autophish/gophish"
	"autophish/gophish/gophishtest"
	"autophish/models"
)

// events is an ordered log of side effects shared by the fakes below.
type events []string

type recordingAPI struct {
	*gophish.Client
	log *events
}

func (a recordingAPI) CreateCampaign(ctx context.Context, c models.Campaign) (models.Campaign, error) {
	*a.log = append(*a.log, "create "+c.SMTP.Name)
	return a.Client.CreateCampaign(ctx, c)
}

type notification struct {
	profile string
	to      string
	subject string
	body    string
}

type fakeNotifier struct {
	log  *events
	sent []notification
	fail map[string]bool
}

func (n *fakeNotifier) Notify(ctx context.Context, profile config.SMTPProfile, to, subject, body string) error {
	*n.log = append(*n.log, "notify "+profile.Name)
	if n.fail[profile.Name] {
		return errors.New("smtp unavailable")
	}
	n.sent = append(n.sent, notification{profile: profile.Name, to: to, subject: subject, body: body})
	return nil
}

func recordingSleeper(log *events, delays *[]time.Duration) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		*log = append(*log, "sleep")
		*delays = append(*delays, d)
		return nil
	}
}

func profileSpec(name string) config.SMTPProfile {
	return config.SMTPProfile{
		Name:        name,
		Host:        name + ".example.com:587",
		FromAddress: name + "@example.com",
		Username:    name + "@example.com",
		Secret:      "pw",
	}
}

func testConfig(t *testing.T, dir string, profiles ...string) *config.Config {
	t.Helper()
	delay := 120 * time.Second
	skip := true
	cfg := &config.Config{
		APIKey:         "key",
		Host:           "https://gophish.test",
		CampaignURL:    "http://example.com",
		RecipientEmail: "ops@example.com",
	}
	cfg.Group.Name = "Staff"
	cfg.Group.Targets = []models.Target{{Email: "alice@example.com"}}
	for _, p := range profiles {
		cfg.SMTPProfiles = append(cfg.SMTPProfiles, profileSpec(p))
	}
	cfg.LandingPage.Name = "Login"
	cfg.LandingPage.HTML = "<h1>Login</h1>"
	cfg.Template.Dir = dir
	cfg.Template.Extension = ".txt"
	cfg.Template.SkipAmbiguous = &skip
	cfg.Dispatch.Delay = &delay
	return cfg
}

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newServer(t *testing.T) *gophishtest.Server {
	t.Helper()
	srv := gophishtest.NewServer("key")
	t.Cleanup(srv.Close)
	return srv
}
