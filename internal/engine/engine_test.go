package engine_test

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"strata/internal/engine"
	"strata/internal/models"
	"strata/internal/notify"
	"strata/internal/repo"
)

const backendOpenWrt = "netjson/openwrt"

// captureSink records published events and can be told to fail on a kind.
type captureSink struct {
	mu     sync.Mutex
	events []notify.Event
	failOn notify.Kind
	err    error
}

func (s *captureSink) Publish(_ context.Context, ev notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && ev.Kind == s.failOn {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSink) byKind(kind notify.Kind) []notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notify.Event
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (s *captureSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []uuid.UUID
}

func (a *fakeAudit) LogAddition(_ context.Context, _, _ string, id uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, id)
}

type fixture struct {
	eng   *engine.Engine
	mem   *repo.Memory
	sink  *captureSink
	audit *fakeAudit
}

func newFixture() *fixture {
	mem := repo.NewMemory()
	sink := &captureSink{}
	audit := &fakeAudit{}
	eng := engine.New(engine.Deps{
		Templates: mem.Templates(),
		Configs:   mem.Configs(),
		Vpns:      mem.Vpns(),
		Clients:   mem.VpnClients(),
		PKI:       mem.PKI(),
		Events:    sink,
		Audit:     audit,
	})
	return &fixture{eng: eng, mem: mem, sink: sink, audit: audit}
}

func newOrg() *uuid.UUID {
	id := uuid.New()
	return &id
}

func genericTemplate(name string, org *uuid.UUID, body string) *models.Template {
	return &models.Template{
		OrgID:   org,
		Name:    name,
		Type:    models.TemplateGeneric,
		Backend: backendOpenWrt,
		Config:  datatypes.JSON(body),
	}
}

func newConfig(name string, org *uuid.UUID) *models.Config {
	return &models.Config{
		OrgID:   org,
		Name:    name,
		Backend: backendOpenWrt,
		Config:  datatypes.JSON(`{"general":{}}`),
	}
}
