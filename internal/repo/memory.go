package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"strata/internal/engine"
	"strata/internal/models"
	"strata/internal/secrets"
)

// Memory — хранилище в памяти: режим без БД и тесты. Реализует те же
// интерфейсы движка, что и gorm-хранилища. Транзакций нет, InTx движку
// в этом режиме не передаётся.
type Memory struct {
	mu          sync.RWMutex
	orgs        map[uuid.UUID]models.Organization
	settings    map[uuid.UUID]models.OrgConfigSettings
	templates   map[uuid.UUID]models.Template
	configs     map[uuid.UUID]models.Config
	vpns        map[uuid.UUID]models.Vpn
	clients     map[uuid.UUID]models.VpnClient
	assignments map[uuid.UUID][]models.TemplateAssignment // configID → назначения
	cas         map[uuid.UUID]models.Ca
	certs       map[uuid.UUID]models.Cert
}

func NewMemory() *Memory {
	return &Memory{
		orgs:        map[uuid.UUID]models.Organization{},
		settings:    map[uuid.UUID]models.OrgConfigSettings{},
		templates:   map[uuid.UUID]models.Template{},
		configs:     map[uuid.UUID]models.Config{},
		vpns:        map[uuid.UUID]models.Vpn{},
		clients:     map[uuid.UUID]models.VpnClient{},
		assignments: map[uuid.UUID][]models.TemplateAssignment{},
		cas:         map[uuid.UUID]models.Ca{},
		certs:       map[uuid.UUID]models.Cert{},
	}
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// ===== templates =====

// Срезы Memory по сущностям: у каждого вида хранилища свой набор методов
// с одинаковыми именами (Get/Create/Save), поэтому обёртки, а не методы
// на самом Memory.
type MemTemplates struct{ *Memory }

func (m *Memory) Templates() MemTemplates { return MemTemplates{m} }

func (m MemTemplates) Get(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %s: %w", id, engine.ErrNotFound)
	}
	return &t, nil
}

func (m MemTemplates) ByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Template, 0, len(ids))
	for _, id := range ids {
		t, ok := m.templates[id]
		if !ok {
			return nil, fmt.Errorf("template %s: %w", id, engine.ErrNotFound)
		}
		out = append(out, t)
	}
	return out, nil
}

func (m MemTemplates) NameExists(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.templates {
		if t.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (m MemTemplates) DefaultsFor(ctx context.Context, orgID *uuid.UUID, backend string) ([]models.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Template
	for _, t := range m.templates {
		if !t.Default || t.Backend != backend {
			continue
		}
		if t.OrgID != nil && (orgID == nil || *t.OrgID != *orgID) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m MemTemplates) List(ctx context.Context, orgID *uuid.UUID) ([]models.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Template
	for _, t := range m.templates {
		if orgID != nil && t.OrgID != nil && *t.OrgID != *orgID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m MemTemplates) Create(ctx context.Context, t *models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensureID(&t.ID)
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	m.templates[t.ID] = *t
	return nil
}

func (m MemTemplates) Save(ctx context.Context, t *models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[t.ID]; !ok {
		return fmt.Errorf("template %s: %w", t.ID, engine.ErrNotFound)
	}
	t.UpdatedAt = time.Now().UTC()
	m.templates[t.ID] = *t
	return nil
}

func (m MemTemplates) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return fmt.Errorf("template %s: %w", id, engine.ErrNotFound)
	}
	delete(m.templates, id)
	return nil
}

// ===== configs =====

type MemConfigs struct{ *Memory }

func (m *Memory) Configs() MemConfigs { return MemConfigs{m} }

func (m MemConfigs) Get(ctx context.Context, id uuid.UUID) (*models.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.configs[id]
	if !ok {
		return nil, fmt.Errorf("config %s: %w", id, engine.ErrNotFound)
	}
	return &c, nil
}

func (m MemConfigs) ByKey(ctx context.Context, key string) (*models.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.configs {
		if c.Key == key {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("config with key %s: %w", key, engine.ErrNotFound)
}

func (m MemConfigs) List(ctx context.Context, orgID *uuid.UUID) ([]models.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Config
	for _, c := range m.configs {
		if orgID != nil && (c.OrgID == nil || *c.OrgID != *orgID) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m MemConfigs) Create(ctx context.Context, c *models.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensureID(&c.ID)
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	m.configs[c.ID] = *c
	return nil
}

func (m MemConfigs) Save(ctx context.Context, c *models.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[c.ID]; !ok {
		return fmt.Errorf("config %s: %w", c.ID, engine.ErrNotFound)
	}
	c.UpdatedAt = time.Now().UTC()
	m.configs[c.ID] = *c
	return nil
}

func (m MemConfigs) Dependents(ctx context.Context, templateID uuid.UUID) ([]models.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Config
	for cfgID, rows := range m.assignments {
		for _, a := range rows {
			if a.TemplateID != templateID {
				continue
			}
			if c, ok := m.configs[cfgID]; ok {
				out = append(out, c)
			}
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m MemConfigs) BulkSetStatus(ctx context.Context, ids []uuid.UUID, st models.ConfigStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, id := range ids {
		c, ok := m.configs[id]
		if !ok {
			continue
		}
		c.Status = st
		c.UpdatedAt = now
		m.configs[id] = c
	}
	return nil
}

func (m MemConfigs) TemplatesOf(ctx context.Context, configID uuid.UUID) ([]models.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := append([]models.TemplateAssignment(nil), m.assignments[configID]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].SortOrder < rows[j].SortOrder })
	out := make([]models.Template, 0, len(rows))
	for _, a := range rows {
		if t, ok := m.templates[a.TemplateID]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m MemConfigs) SetTemplates(ctx context.Context, configID uuid.UUID, templateIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]models.TemplateAssignment, len(templateIDs))
	now := time.Now().UTC()
	for i, tid := range templateIDs {
		rows[i] = models.TemplateAssignment{
			ConfigID:   configID,
			TemplateID: tid,
			SortOrder:  i,
			CreatedAt:  now,
		}
	}
	m.assignments[configID] = rows
	return nil
}

func (m MemConfigs) SaveRendered(ctx context.Context, id uuid.UUID, artifact []byte, checksum string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[id]
	if !ok {
		return fmt.Errorf("config %s: %w", id, engine.ErrNotFound)
	}
	now := time.Now().UTC()
	c.RenderedConfig = append([]byte(nil), artifact...)
	c.RenderedChecksum = checksum
	c.RenderedAt = &now
	m.configs[id] = c
	return nil
}

// ===== vpns =====

type MemVpns struct{ *Memory }

func (m *Memory) Vpns() MemVpns { return MemVpns{m} }

func (m MemVpns) Get(ctx context.Context, id uuid.UUID) (*models.Vpn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vpns[id]
	if !ok {
		return nil, fmt.Errorf("vpn %s: %w", id, engine.ErrNotFound)
	}
	return &v, nil
}

func (m MemVpns) List(ctx context.Context, orgID *uuid.UUID) ([]models.Vpn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Vpn
	for _, v := range m.vpns {
		if orgID != nil && v.OrgID != nil && *v.OrgID != *orgID {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m MemVpns) Create(ctx context.Context, v *models.Vpn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensureID(&v.ID)
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	m.vpns[v.ID] = *v
	return nil
}

func (m MemVpns) Save(ctx context.Context, v *models.Vpn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vpns[v.ID]; !ok {
		return fmt.Errorf("vpn %s: %w", v.ID, engine.ErrNotFound)
	}
	v.UpdatedAt = time.Now().UTC()
	m.vpns[v.ID] = *v
	return nil
}

// ===== vpn clients =====

type MemVpnClients struct{ *Memory }

func (m *Memory) VpnClients() MemVpnClients { return MemVpnClients{m} }

func (m MemVpnClients) ForConfig(ctx context.Context, configID uuid.UUID) ([]models.VpnClient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.VpnClient
	for _, c := range m.clients {
		if c.ConfigID == configID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m MemVpnClients) Create(ctx context.Context, c *models.VpnClient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensureID(&c.ID)
	c.CreatedAt = time.Now().UTC()
	m.clients[c.ID] = *c
	return nil
}

func (m MemVpnClients) Delete(ctx context.Context, vpnID, configID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.clients {
		if c.VpnID == vpnID && c.ConfigID == configID {
			delete(m.clients, id)
		}
	}
	return nil
}

// ===== organizations =====

type MemOrgs struct{ *Memory }

func (m *Memory) Orgs() MemOrgs { return MemOrgs{m} }

func (m MemOrgs) Get(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, fmt.Errorf("organization %s: %w", id, engine.ErrNotFound)
	}
	return &o, nil
}

func (m MemOrgs) List(ctx context.Context) ([]models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Organization
	for _, o := range m.orgs {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m MemOrgs) Create(ctx context.Context, o *models.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensureID(&o.ID)
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	m.orgs[o.ID] = *o
	return nil
}

func (m MemOrgs) Settings(ctx context.Context, orgID uuid.UUID) (*models.OrgConfigSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.settings[orgID]; ok {
		return &st, nil
	}
	st := models.OrgConfigSettings{
		ID:                  uuid.New(),
		OrgID:               orgID,
		RegistrationEnabled: true,
		SharedSecret:        secrets.GenerateKey(),
		CreatedAt:           time.Now().UTC(),
	}
	m.settings[orgID] = st
	return &st, nil
}

func (m MemOrgs) SaveSettings(ctx context.Context, st *models.OrgConfigSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st.UpdatedAt = time.Now().UTC()
	m.settings[st.OrgID] = *st
	return nil
}

// ===== pki =====

type MemPKI struct{ *Memory }

func (m *Memory) PKI() MemPKI { return MemPKI{m} }

func (m MemPKI) GetCA(ctx context.Context, id uuid.UUID) (*models.Ca, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ca, ok := m.cas[id]
	if !ok {
		return nil, fmt.Errorf("ca %s: %w", id, engine.ErrNotFound)
	}
	return &ca, nil
}

func (m MemPKI) ListCAs(ctx context.Context, orgID *uuid.UUID) ([]models.Ca, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Ca
	for _, ca := range m.cas {
		if orgID != nil && ca.OrgID != nil && *ca.OrgID != *orgID {
			continue
		}
		out = append(out, ca)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m MemPKI) GetOrCreateCA(ctx context.Context, name string, create func() (*models.Ca, error)) (*models.Ca, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ca := range m.cas {
		if ca.Name == name {
			return &ca, nil
		}
	}
	ca, err := create()
	if err != nil {
		return nil, err
	}
	ensureID(&ca.ID)
	ca.CreatedAt = time.Now().UTC()
	m.cas[ca.ID] = *ca
	return ca, nil
}

func (m MemPKI) SaveCert(ctx context.Context, c *models.Cert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensureID(&c.ID)
	c.CreatedAt = time.Now().UTC()
	m.certs[c.ID] = *c
	return nil
}

func (m MemPKI) GetCert(ctx context.Context, id uuid.UUID) (*models.Cert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.certs[id]
	if !ok {
		return nil, fmt.Errorf("cert %s: %w", id, engine.ErrNotFound)
	}
	return &c, nil
}
