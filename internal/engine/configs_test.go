package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"strata/internal/engine"
	"strata/internal/models"
	"strata/internal/notify"
	"strata/internal/pki"
	"strata/internal/repo"
)

func TestCreateConfig_GeneratesKeyAndStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cfg := newConfig("ap-1", nil)
	require.NoError(t, f.eng.CreateConfig(ctx, cfg, engine.RefsFromIDs(), "tester"))

	assert.Len(t, cfg.Key, 32)
	assert.Equal(t, models.StatusModified, cfg.Status)
	assert.NotEqual(t, uuid.Nil, cfg.ID)

	// supplied keys are kept
	cfg2 := newConfig("ap-2", nil)
	cfg2.Key = "mykey123"
	require.NoError(t, f.eng.CreateConfig(ctx, cfg2, engine.RefsFromIDs(), "tester"))
	assert.Equal(t, "mykey123", cfg2.Key)
}

func TestCreateConfig_AttachesDefaultTemplates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	orgA, orgB := newOrg(), newOrg()

	shared := genericTemplate("shared-default", nil, `{"a":1}`)
	shared.Default = true
	require.NoError(t, f.eng.CreateTemplate(ctx, shared, "tester"))

	own := genericTemplate("org-default", orgA, `{"b":2}`)
	own.Default = true
	require.NoError(t, f.eng.CreateTemplate(ctx, own, "tester"))

	foreign := genericTemplate("foreign-default", orgB, `{"c":3}`)
	foreign.Default = true
	require.NoError(t, f.eng.CreateTemplate(ctx, foreign, "tester"))

	otherBackend := genericTemplate("other-backend", orgA, `{"d":4}`)
	otherBackend.Default = true
	otherBackend.Backend = "netjson/openwisp"
	require.NoError(t, f.eng.CreateTemplate(ctx, otherBackend, "tester"))

	plain := genericTemplate("plain", orgA, `{"e":5}`)
	require.NoError(t, f.eng.CreateTemplate(ctx, plain, "tester"))

	cfg := newConfig("ap-1", orgA)
	require.NoError(t, f.eng.CreateConfig(ctx, cfg, engine.RefsFromIDs(), "tester"))

	attached, err := f.mem.Configs().TemplatesOf(ctx, cfg.ID)
	require.NoError(t, err)
	names := make([]string, len(attached))
	for i, tpl := range attached {
		names[i] = tpl.Name
	}
	assert.ElementsMatch(t, []string{"shared-default", "org-default"}, names)

	// an explicit list suppresses the defaults
	cfg2 := newConfig("ap-2", orgA)
	require.NoError(t, f.eng.CreateConfig(ctx, cfg2, engine.RefsFromIDs(plain.ID), "tester"))
	attached, err = f.mem.Configs().TemplatesOf(ctx, cfg2.ID)
	require.NoError(t, err)
	require.Len(t, attached, 1)
	assert.Equal(t, "plain", attached[0].Name)
}

func TestCreateConfig_InvalidTemplateSetLeavesNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tpl := genericTemplate("org-tpl", newOrg(), `{"a":1}`)
	require.NoError(t, f.eng.CreateTemplate(ctx, tpl, "tester"))

	cfg := newConfig("ap-1", newOrg())
	err := f.eng.CreateConfig(ctx, cfg, engine.RefsFromIDs(tpl.ID), "tester")
	require.Error(t, err)

	_, err = f.mem.Configs().Get(ctx, cfg.ID)
	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestSaveConfig_ContextChangeInvalidates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cfg := newConfig("ap-1", nil)
	require.NoError(t, f.eng.CreateConfig(ctx, cfg, engine.RefsFromIDs(), "tester"))
	_, err := f.eng.ReportStatus(ctx, cfg.ID, models.StatusApplied)
	require.NoError(t, err)
	f.sink.reset()

	upd := *cfg
	upd.Context = datatypes.JSONMap{"hostname": "ap-1-lab"}
	require.NoError(t, f.eng.SaveConfig(ctx, &upd))

	assert.Equal(t, models.StatusModified, upd.Status)
	assert.Len(t, f.sink.byKind(notify.ConfigContentChanged), 1)
	status := f.sink.byKind(notify.ConfigStatusChanged)
	require.Len(t, status, 1)
	assert.Equal(t, models.StatusModified, status[0].Status)
	assert.Nil(t, status[0].TemplateID)
}

func TestSaveConfig_NoChangeKeepsStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cfg := newConfig("ap-1", nil)
	require.NoError(t, f.eng.CreateConfig(ctx, cfg, engine.RefsFromIDs(), "tester"))
	_, err := f.eng.ReportStatus(ctx, cfg.ID, models.StatusApplied)
	require.NoError(t, err)
	f.sink.reset()

	upd := *cfg
	upd.Name = "ap-1-renamed"
	require.NoError(t, f.eng.SaveConfig(ctx, &upd))

	assert.Equal(t, models.StatusApplied, upd.Status)
	assert.Empty(t, f.sink.events)

	// the report key cannot be changed through save
	upd.Key = "hijacked"
	require.NoError(t, f.eng.SaveConfig(ctx, &upd))
	assert.Equal(t, cfg.Key, upd.Key)
}

func TestSaveConfig_BodyChangeWhenAlreadyModified(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cfg := newConfig("ap-1", nil)
	require.NoError(t, f.eng.CreateConfig(ctx, cfg, engine.RefsFromIDs(), "tester"))
	f.sink.reset()

	upd := *cfg
	upd.Config = datatypes.JSON(`{"general":{"hostname":"ap"}}`)
	require.NoError(t, f.eng.SaveConfig(ctx, &upd))

	// content event fires, status event does not: it was modified already
	assert.Len(t, f.sink.byKind(notify.ConfigContentChanged), 1)
	assert.Empty(t, f.sink.byKind(notify.ConfigStatusChanged))
}

func TestSetConfigTemplates_SyncsVpnClients(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	server := &models.Vpn{
		Name:    "wg-hub",
		Backend: models.VpnWireGuard,
		Host:    "wg.example.com",
		CaID:    uuid.New(),
	}
	require.NoError(t, f.mem.Vpns().Create(ctx, server))

	vpnTpl := &models.Template{Name: "wg-client", Type: models.TemplateVPN, Backend: backendOpenWrt, VpnID: &server.ID}
	require.NoError(t, f.eng.CreateTemplate(ctx, vpnTpl, "tester"))

	cfg := newConfig("ap-1", nil)
	require.NoError(t, f.eng.CreateConfig(ctx, cfg, engine.RefsFromIDs(), "tester"))
	_, err := f.eng.ReportStatus(ctx, cfg.ID, models.StatusApplied)
	require.NoError(t, err)
	f.sink.reset()

	require.NoError(t, f.eng.SetConfigTemplates(ctx, cfg.ID, engine.RefsFromIDs(vpnTpl.ID)))

	clients, err := f.mem.VpnClients().ForConfig(ctx, cfg.ID)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, server.ID, clients[0].VpnID)
	assert.NotEmpty(t, clients[0].PrivateKey)
	assert.NotEmpty(t, clients[0].PublicKey)
	assert.NotEqual(t, clients[0].PrivateKey, clients[0].PublicKey)

	got, err := f.mem.Configs().Get(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusModified, got.Status)
	assert.Len(t, f.sink.byKind(notify.ConfigContentChanged), 1)
	assert.Len(t, f.sink.byKind(notify.ConfigStatusChanged), 1)

	// re-assigning the same set keeps the existing membership
	existingID := clients[0].ID
	require.NoError(t, f.eng.SetConfigTemplates(ctx, cfg.ID, engine.RefsFromIDs(vpnTpl.ID)))
	clients, err = f.mem.VpnClients().ForConfig(ctx, cfg.ID)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, existingID, clients[0].ID)

	// removing the template removes the membership
	require.NoError(t, f.eng.SetConfigTemplates(ctx, cfg.ID, engine.RefsFromIDs()))
	clients, err = f.mem.VpnClients().ForConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Empty(t, clients)
}

func TestSetConfigTemplates_AutoCertIssuesCertificate(t *testing.T) {
	mem := repo.NewMemory()
	sink := &captureSink{}
	certs := pki.New(mem.PKI())
	eng := engine.New(engine.Deps{
		Templates: mem.Templates(),
		Configs:   mem.Configs(),
		Vpns:      mem.Vpns(),
		Clients:   mem.VpnClients(),
		Events:    sink,
		Certs:     certs,
	})
	ctx := context.Background()

	ca, err := certs.EnsureCA(ctx, "default", nil, 24*365*time.Hour)
	require.NoError(t, err)

	server := &models.Vpn{
		Name:    "hq",
		Backend: models.VpnOpenVPN,
		Host:    "vpn.example.com",
		CaID:    ca.ID,
	}
	require.NoError(t, mem.Vpns().Create(ctx, server))

	vpnTpl := &models.Template{
		Name: "hq-client", Type: models.TemplateVPN, Backend: backendOpenWrt,
		VpnID: &server.ID, AutoCert: true,
	}
	require.NoError(t, eng.CreateTemplate(ctx, vpnTpl, "tester"))

	cfg := newConfig("ap-1", nil)
	require.NoError(t, eng.CreateConfig(ctx, cfg, engine.RefsFromIDs(vpnTpl.ID), "tester"))

	clients, err := mem.VpnClients().ForConfig(ctx, cfg.ID)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	require.NotNil(t, clients[0].CertID)

	cert, err := mem.PKI().GetCert(ctx, *clients[0].CertID)
	require.NoError(t, err)
	assert.Equal(t, cfg.Key, cert.CN)
	assert.Equal(t, ca.ID, cert.CaID)
	assert.NotEmpty(t, cert.CertPEM)
	assert.NotEmpty(t, cert.KeyPEM)
}

func TestReportStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cfg := newConfig("ap-1", nil)
	require.NoError(t, f.eng.CreateConfig(ctx, cfg, engine.RefsFromIDs(), "tester"))
	f.sink.reset()

	// the engine only accepts outcomes from the applier
	_, err := f.eng.ReportStatus(ctx, cfg.ID, models.StatusModified)
	require.Error(t, err)
	assert.True(t, engine.IsValidation(err))

	got, err := f.eng.ReportStatus(ctx, cfg.ID, models.StatusApplied)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, got.Status)
	require.Len(t, f.sink.byKind(notify.ConfigStatusChanged), 1)
	assert.Equal(t, models.StatusApplied, f.sink.byKind(notify.ConfigStatusChanged)[0].Status)

	// repeating the same outcome is a no-op
	f.sink.reset()
	got, err = f.eng.ReportStatus(ctx, cfg.ID, models.StatusApplied)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, got.Status)
	assert.Empty(t, f.sink.events)

	got, err = f.eng.ReportStatus(ctx, cfg.ID, models.StatusError)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)

	_, err = f.eng.ReportStatus(ctx, uuid.New(), models.StatusApplied)
	require.ErrorIs(t, err, engine.ErrNotFound)
}
