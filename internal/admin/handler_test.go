package admin_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/config"
	"strata/internal/admin"
	"strata/internal/controller"
	"strata/internal/engine"
	"strata/internal/models"
	"strata/internal/pki"
	"strata/internal/repo"
)

const testToken = "api-test-token"

type api struct {
	router *mux.Router
	mem    *repo.Memory
}

func newAPI(t *testing.T) *api {
	t.Helper()
	mem := repo.NewMemory()
	pkiSvc := pki.New(mem.PKI())
	eng := engine.New(engine.Deps{
		Templates: mem.Templates(),
		Configs:   mem.Configs(),
		Vpns:      mem.Vpns(),
		Clients:   mem.VpnClients(),
		PKI:       mem.PKI(),
		Certs:     pkiSvc,
	})
	renderer, err := controller.NewRenderer(mem.Configs(), mem.Vpns(), mem.VpnClients(), mem.PKI(), controller.CacheOptions{})
	require.NoError(t, err)
	t.Cleanup(renderer.Close)

	cfg := &config.Config{}
	cfg.Admin.Token = testToken
	cfg.VPN.AutoCert = true
	cfg.VPN.CATTLHours = 24

	r := mux.NewRouter()
	admin.Attach(r, admin.Dependencies{
		Engine:    eng,
		Renderer:  renderer,
		Orgs:      mem.Orgs(),
		Templates: mem.Templates(),
		Configs:   mem.Configs(),
		Vpns:      mem.Vpns(),
		CAs:       mem.PKI(),
		PKI:       pkiSvc,
		CFG:       cfg,
	})
	return &api{router: r, mem: mem}
}

func (a *api) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body: %s", w.Body.String())
}

func (a *api) createOrg(t *testing.T, name string) models.Organization {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/organizations", map[string]any{"name": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var org models.Organization
	decodeInto(t, w, &org)
	return org
}

func (a *api) createTemplate(t *testing.T, body map[string]any) models.Template {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/templates", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tpl models.Template
	decodeInto(t, w, &tpl)
	return tpl
}

func (a *api) createConfig(t *testing.T, body map[string]any) models.Config {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/configs", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var cfg models.Config
	decodeInto(t, w, &cfg)
	return cfg
}

func TestAuthRequired(t *testing.T) {
	a := newAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations", nil)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/organizations", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/v1/organizations", nil).Code)
}

func TestOrgTemplateConfigLifecycle(t *testing.T) {
	a := newAPI(t)
	org := a.createOrg(t, "Acme Networks")
	assert.Equal(t, "acme-networks", org.Slug)

	tpl := a.createTemplate(t, map[string]any{
		"organization_id": org.ID,
		"name":            "base",
		"type":            "generic",
		"backend":         "netjson/openwrt",
		"config":          map[string]any{"general": map[string]any{"timezone": "UTC"}},
		"default_values":  map[string]any{"dns": "1.1.1.1"},
		"default":         true,
	})
	require.NotEqual(t, uuid.Nil, tpl.ID)

	w := a.do(t, http.MethodGet, "/api/v1/templates?organization_id="+org.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tpls []models.Template
	decodeInto(t, w, &tpls)
	require.Len(t, tpls, 1)

	// config without explicit templates picks up the org default
	cfg := a.createConfig(t, map[string]any{
		"organization_id": org.ID,
		"name":            "node-1",
		"backend":         "netjson/openwrt",
		"config":          map[string]any{"general": map[string]any{"hostname": "node-1"}},
		"context":         map[string]any{"dns": "8.8.8.8"},
	})
	assert.Equal(t, models.StatusModified, cfg.Status)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), cfg.Key)

	w = a.do(t, http.MethodGet, "/api/v1/configs/"+cfg.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Config
	decodeInto(t, w, &got)
	require.Len(t, got.Templates, 1)
	assert.Equal(t, "base", got.Templates[0].Name)

	// merged context: template defaults overridden by the config's own vars
	w = a.do(t, http.MethodGet, "/api/v1/configs/"+cfg.ID.String()+"/context", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var merged map[string]any
	decodeInto(t, w, &merged)
	assert.Equal(t, "8.8.8.8", merged["dns"])

	w = a.do(t, http.MethodGet, "/api/v1/configs?organization_id="+org.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cfgs []models.Config
	decodeInto(t, w, &cfgs)
	require.Len(t, cfgs, 1)
}

func TestTemplateChangeCascadesOverAPI(t *testing.T) {
	a := newAPI(t)
	org := a.createOrg(t, "Cascade Org")
	tpl := a.createTemplate(t, map[string]any{
		"organization_id": org.ID,
		"name":            "wifi",
		"type":            "generic",
		"backend":         "netjson/openwrt",
		"config":          map[string]any{"interfaces": []any{map[string]any{"name": "wlan0"}}},
	})
	cfg := a.createConfig(t, map[string]any{
		"organization_id": org.ID,
		"name":            "ap-1",
		"backend":         "netjson/openwrt",
		"config":          map[string]any{"general": map[string]any{}},
		"template_ids":    []uuid.UUID{tpl.ID},
	})

	// device applied its config
	w := a.do(t, http.MethodPost, "/api/v1/configs/"+cfg.ID.String()+"/status", map[string]any{"status": "applied"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var applied models.Config
	decodeInto(t, w, &applied)
	assert.Equal(t, models.StatusApplied, applied.Status)

	// a body change on the template invalidates the dependent config
	w = a.do(t, http.MethodPut, "/api/v1/templates/"+tpl.ID.String(), map[string]any{
		"config": map[string]any{"interfaces": []any{map[string]any{"name": "wlan1"}}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/v1/configs/"+cfg.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var after models.Config
	decodeInto(t, w, &after)
	assert.Equal(t, models.StatusModified, after.Status)
}

func TestDeleteAssignedTemplateRejected(t *testing.T) {
	a := newAPI(t)
	org := a.createOrg(t, "Del Org")
	tpl := a.createTemplate(t, map[string]any{
		"organization_id": org.ID,
		"name":            "pinned",
		"type":            "generic",
		"backend":         "netjson/openwrt",
		"config":          map[string]any{"general": map[string]any{}},
	})
	a.createConfig(t, map[string]any{
		"organization_id": org.ID,
		"name":            "holder",
		"backend":         "netjson/openwrt",
		"config":          map[string]any{"general": map[string]any{}},
		"template_ids":    []uuid.UUID{tpl.ID},
	})

	w := a.do(t, http.MethodDelete, "/api/v1/templates/"+tpl.ID.String(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// detach, then delete succeeds
	cfgID := a.onlyConfigID(t)
	w = a.do(t, http.MethodPut, "/api/v1/configs/"+cfgID.String()+"/templates", map[string]any{"template_ids": []uuid.UUID{}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = a.do(t, http.MethodDelete, "/api/v1/templates/"+tpl.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func (a *api) onlyConfigID(t *testing.T) uuid.UUID {
	t.Helper()
	cfgs, err := a.mem.Configs().List(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	return cfgs[0].ID
}

func TestOrgMismatchProblem(t *testing.T) {
	a := newAPI(t)
	owner := a.createOrg(t, "Owner")
	other := a.createOrg(t, "Other")
	tpl := a.createTemplate(t, map[string]any{
		"organization_id": owner.ID,
		"name":            "private",
		"type":            "generic",
		"backend":         "netjson/openwrt",
		"config":          map[string]any{"general": map[string]any{}},
	})

	w := a.do(t, http.MethodPost, "/api/v1/configs", map[string]any{
		"organization_id": other.ID,
		"name":            "intruder",
		"backend":         "netjson/openwrt",
		"config":          map[string]any{"general": map[string]any{}},
		"template_ids":    []uuid.UUID{tpl.ID},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var p models.Problem
	decodeInto(t, w, &p)
	assert.Equal(t, "Organization Mismatch", p.Title)
}

func TestCloneTemplateEndpoint(t *testing.T) {
	a := newAPI(t)
	org := a.createOrg(t, "Clone Org")
	tpl := a.createTemplate(t, map[string]any{
		"organization_id": org.ID,
		"name":            "wifi",
		"type":            "generic",
		"backend":         "netjson/openwrt",
		"config":          map[string]any{"interfaces": []any{}},
		"default":         true,
	})

	w := a.do(t, http.MethodPost, "/api/v1/templates/"+tpl.ID.String()+"/clone", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var clone models.Template
	decodeInto(t, w, &clone)
	assert.Equal(t, "wifi (Clone)", clone.Name)
	assert.False(t, clone.Default, "clones never inherit the default flag")

	w = a.do(t, http.MethodPost, "/api/v1/templates/"+tpl.ID.String()+"/clone", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	decodeInto(t, w, &clone)
	assert.Equal(t, "wifi (Clone 2)", clone.Name)
}

func TestRenderArtifact(t *testing.T) {
	a := newAPI(t)
	org := a.createOrg(t, "Render Org")
	cfg := a.createConfig(t, map[string]any{
		"organization_id": org.ID,
		"name":            "router-1",
		"backend":         "netjson/openwrt",
		"config": map[string]any{
			"general": map[string]any{"hostname": "router-1", "timezone": "UTC"},
		},
	})

	w := a.do(t, http.MethodGet, "/api/v1/configs/"+cfg.ID.String()+"/render", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/gzip", w.Header().Get("Content-Type"))
	sum := w.Header().Get("X-Checksum")
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), sum)
	assert.NotEmpty(t, w.Body.Bytes())

	// caller already holds the current artifact
	w = a.do(t, http.MethodGet, "/api/v1/configs/"+cfg.ID.String()+"/render?checksum="+sum, nil)
	assert.Equal(t, http.StatusNotModified, w.Code)

	// the key-addressed route produces the same artifact
	w = a.do(t, http.MethodGet, "/api/v1/configs/key/"+cfg.Key+"/render", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, sum, w.Header().Get("X-Checksum"))
}

func TestReportStatusByKey(t *testing.T) {
	a := newAPI(t)
	org := a.createOrg(t, "Report Org")
	cfg := a.createConfig(t, map[string]any{
		"organization_id": org.ID,
		"name":            "node-9",
		"backend":         "netjson/openwrt",
		"config":          map[string]any{"general": map[string]any{}},
	})

	w := a.do(t, http.MethodPost, "/api/v1/configs/key/"+cfg.Key+"/status", map[string]any{"status": "applied"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got models.Config
	decodeInto(t, w, &got)
	assert.Equal(t, models.StatusApplied, got.Status)

	w = a.do(t, http.MethodPost, "/api/v1/configs/key/"+cfg.Key+"/status", map[string]any{"status": "rebooted"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/configs/key/no-such-key/status", map[string]any{"status": "applied"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrgSettingsSecret(t *testing.T) {
	a := newAPI(t)
	org := a.createOrg(t, "Settings Org")
	base := "/api/v1/organizations/" + org.ID.String() + "/settings"

	w := a.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var st models.OrgConfigSettings
	decodeInto(t, w, &st)
	assert.True(t, st.RegistrationEnabled)
	first := st.SharedSecret
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), first)

	w = a.do(t, http.MethodPut, base, map[string]any{"rotate_secret": true})
	require.Equal(t, http.StatusOK, w.Code)
	decodeInto(t, w, &st)
	assert.NotEqual(t, first, st.SharedSecret)

	w = a.do(t, http.MethodPut, base, map[string]any{"shared_secret": "has space"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPut, base, map[string]any{"shared_secret": "hand-picked-secret", "registration_enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	decodeInto(t, w, &st)
	assert.Equal(t, "hand-picked-secret", st.SharedSecret)
	assert.False(t, st.RegistrationEnabled)
}

func TestVpnProvisioningOverAPI(t *testing.T) {
	a := newAPI(t)
	org := a.createOrg(t, "VPN Org")

	w := a.do(t, http.MethodPost, "/api/v1/pki/cas", map[string]any{"name": "Root CA"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ca models.Ca
	decodeInto(t, w, &ca)
	require.NotEqual(t, uuid.Nil, ca.ID)

	// vpn without a CA is rejected
	w = a.do(t, http.MethodPost, "/api/v1/vpns", map[string]any{
		"name": "broken", "backend": "wireguard", "host": "vpn.example.com",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/vpns", map[string]any{
		"name":    "office-wg",
		"backend": "wireguard",
		"host":    "vpn.example.com",
		"ca_id":   ca.ID,
		"config":  map[string]any{"public_key": "srvkey", "subnet": "10.8.0.0/24"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var v models.Vpn
	decodeInto(t, w, &v)

	// an empty vpn template body is auto-filled with the client fragment
	tpl := a.createTemplate(t, map[string]any{
		"organization_id": org.ID,
		"name":            "wg-access",
		"type":            "vpn",
		"backend":         "netjson/openwrt",
		"vpn_id":          v.ID,
		"auto_cert":       false,
	})
	assert.Contains(t, string(tpl.Config), "wireguard")
	assert.Contains(t, string(tpl.Config), "{{wg_private_key}}")

	// assignment creates the vpn client with a wireguard keypair
	cfg := a.createConfig(t, map[string]any{
		"organization_id": org.ID,
		"name":            "laptop",
		"backend":         "netjson/openwrt",
		"config":          map[string]any{"general": map[string]any{}},
		"template_ids":    []uuid.UUID{tpl.ID},
	})
	clients, err := a.mem.VpnClients().ForConfig(context.Background(), cfg.ID)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, v.ID, clients[0].VpnID)
	assert.NotEmpty(t, clients[0].PublicKey)

	// rendered artifact resolves the wireguard variables
	w = a.do(t, http.MethodGet, "/api/v1/configs/"+cfg.ID.String()+"/render", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/v1/vpns?organization_id="+org.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var vpns []models.Vpn
	decodeInto(t, w, &vpns)
	require.Len(t, vpns, 1)

	w = a.do(t, http.MethodGet, "/api/v1/pki/cas", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cas []models.Ca
	decodeInto(t, w, &cas)
	require.Len(t, cas, 1)
}
