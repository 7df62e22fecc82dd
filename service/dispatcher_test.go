package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autophish/gophish"
	"autophish/models"
	"autophish/reconcile"
)

type dispatchFixture struct {
	dispatcher *Dispatcher
	notifier   *fakeNotifier
	log        *events
	delays     *[]time.Duration
	tmpl       models.Template
	groupID    int64
	pageID     int64
	profiles   []ProfileRef
}

func newDispatchFixture(t *testing.T, reject string, profiles ...string) dispatchFixture {
	t.Helper()
	srv := newServer(t)
	if reject != "" {
		srv.RejectCampaign = func(c models.Campaign) bool { return c.SMTP.Name == reject }
	}
	tmpl := srv.SeedTemplate(models.Template{Name: "Welcome", Subject: "Welcome", HTML: "<p>hi</p>"})
	group := srv.SeedGroup(models.Group{Name: "Staff", Targets: []models.Target{{Email: "a@example.com"}}})
	page := srv.SeedPage(models.Page{Name: "Login"})

	var refs []ProfileRef
	for _, name := range profiles {
		sp := srv.SeedSendingProfile(profileSpec(name).SendingProfile())
		refs = append(refs, ProfileRef{ID: sp.ID, Spec: profileSpec(name)})
	}

	log := &events{}
	delays := &[]time.Duration{}
	notifier := &fakeNotifier{log: log}
	cfg := testConfig(t, t.TempDir(), profiles...)
	api := recordingAPI{Client: gophish.New(srv.URL, "key"), log: log}
	fixed := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	return dispatchFixture{
		dispatcher: NewDispatcher(cfg, api, notifier, nil, WithSleeper(recordingSleeper(log, delays)), WithClock(func() time.Time { return fixed })),
		notifier:   notifier,
		log:        log,
		delays:     delays,
		tmpl:       tmpl,
		groupID:    group.ID,
		pageID:     page.ID,
		profiles:   refs,
	}
}

func TestDispatchAllInOrder(t *testing.T) {
	f := newDispatchFixture(t, "", "alpha", "beta")

	outcomes := f.dispatcher.DispatchAll(context.Background(), f.tmpl, f.groupID, f.profiles, f.pageID)
	require.Len(t, outcomes, 2)
	for i, o := range outcomes {
		assert.Equal(t, models.DispatchSent, o.Status)
		assert.True(t, o.Notified)
		assert.NotZero(t, o.CampaignID)
		assert.Equal(t, f.profiles[i].ID, o.ProfileID)
	}

	assert.Equal(t, events{"create alpha", "notify alpha", "sleep", "create beta", "notify beta"}, *f.log)
	assert.Equal(t, []time.Duration{120 * time.Second}, *f.delays)

	require.Len(t, f.notifier.sent, 2)
	n := f.notifier.sent[0]
	assert.Equal(t, "ops@example.com", n.to)
	assert.Equal(t, "Campaign launched: Campaign with template Welcome", n.subject)
	assert.Contains(t, n.body, "Sending profile: alpha")
	assert.Contains(t, n.body, "Groups:          Staff")
	assert.Contains(t, n.body, "Launched at:     2026-10-17T09:00:00Z")
}

func TestDispatchAllIsolatesFailures(t *testing.T) {
	f := newDispatchFixture(t, "beta", "alpha", "beta", "gamma")

	outcomes := f.dispatcher.DispatchAll(context.Background(), f.tmpl, f.groupID, f.profiles, f.pageID)
	require.Len(t, outcomes, 3)

	assert.Equal(t, models.DispatchSent, outcomes[0].Status)
	assert.Equal(t, models.DispatchFailed, outcomes[1].Status)
	assert.ErrorIs(t, outcomes[1].Err, reconcile.ErrCreateRejected)
	assert.False(t, outcomes[1].Notified)
	assert.Equal(t, models.DispatchSent, outcomes[2].Status)

	// no pacing after the rejected dispatch
	assert.Equal(t, events{
		"create alpha", "notify alpha", "sleep",
		"create beta",
		"create gamma", "notify gamma",
	}, *f.log)
	assert.Len(t, f.notifier.sent, 2)
}

func TestDispatchAllPacesAcrossTemplates(t *testing.T) {
	f := newDispatchFixture(t, "", "alpha")

	f.dispatcher.DispatchAll(context.Background(), f.tmpl, f.groupID, f.profiles, f.pageID)
	assert.Equal(t, events{"create alpha", "notify alpha"}, *f.log, "no delay after the last launch so far")

	f.dispatcher.DispatchAll(context.Background(), f.tmpl, f.groupID, f.profiles, f.pageID)
	assert.Equal(t, events{"create alpha", "notify alpha", "sleep", "create alpha", "notify alpha"}, *f.log)
	assert.Len(t, *f.delays, 1)
}

func TestDispatchAllNoPacingAfterFailure(t *testing.T) {
	f := newDispatchFixture(t, "alpha", "alpha")

	f.dispatcher.DispatchAll(context.Background(), f.tmpl, f.groupID, f.profiles, f.pageID)
	f.dispatcher.DispatchAll(context.Background(), f.tmpl, f.groupID, f.profiles, f.pageID)
	assert.Equal(t, events{"create alpha", "create alpha"}, *f.log)
	assert.Empty(t, *f.delays)
}

func TestDispatchAllNotificationFailureKeepsCampaign(t *testing.T) {
	f := newDispatchFixture(t, "", "alpha", "beta")
	f.notifier.fail = map[string]bool{"alpha": true}

	outcomes := f.dispatcher.DispatchAll(context.Background(), f.tmpl, f.groupID, f.profiles, f.pageID)
	require.Len(t, outcomes, 2)
	assert.Equal(t, models.DispatchSent, outcomes[0].Status)
	assert.False(t, outcomes[0].Notified)
	assert.True(t, outcomes[1].Notified)
	assert.Equal(t, events{"create alpha", "notify alpha", "sleep", "create beta", "notify beta"}, *f.log)
}

func TestDispatchAllMissingReferences(t *testing.T) {
	f := newDispatchFixture(t, "", "alpha")

	outcomes := f.dispatcher.DispatchAll(context.Background(), f.tmpl, 0, f.profiles, f.pageID)
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, ErrMissingReference)

	outcomes = f.dispatcher.DispatchAll(context.Background(), f.tmpl, f.groupID, f.profiles, 0)
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, ErrMissingReference)
	assert.Empty(t, *f.log, "no campaign is submitted without references")
}

func TestDispatchAllStopsWhenCanceled(t *testing.T) {
	f := newDispatchFixture(t, "", "alpha", "beta")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := f.dispatcher.DispatchAll(ctx, f.tmpl, f.groupID, f.profiles, f.pageID)
	assert.Empty(t, outcomes)
	assert.Empty(t, *f.log)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, SleepContext(context.Background(), 0))
	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}

func TestCampaignName(t *testing.T) {
	assert.Equal(t, "Campaign with template Quarterly review", CampaignName(models.Template{Subject: "Quarterly review"}))
}
