package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"strata/internal/engine"
	"strata/internal/models"
	"strata/internal/notify"
)

// two dependents, one already applied: a body change must invalidate both,
// but only the applied one gets a status event.
func TestUpdateTemplate_Cascade(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tpl := genericTemplate("wifi", nil, `{"interfaces":[{"name":"wlan0"}]}`)
	require.NoError(t, f.eng.CreateTemplate(ctx, tpl, "tester"))

	cfgA := newConfig("ap-1", nil)
	require.NoError(t, f.eng.CreateConfig(ctx, cfgA, engine.RefsFromIDs(tpl.ID), "tester"))
	cfgB := newConfig("ap-2", nil)
	require.NoError(t, f.eng.CreateConfig(ctx, cfgB, engine.RefsFromIDs(tpl.ID), "tester"))

	_, err := f.eng.ReportStatus(ctx, cfgB.ID, models.StatusApplied)
	require.NoError(t, err)
	f.sink.reset()

	upd := *tpl
	upd.Config = datatypes.JSON(`{"interfaces":[{"name":"wlan0","disabled":true}]}`)
	require.NoError(t, f.eng.UpdateTemplate(ctx, &upd))

	gotA, err := f.mem.Configs().Get(ctx, cfgA.ID)
	require.NoError(t, err)
	gotB, err := f.mem.Configs().Get(ctx, cfgB.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusModified, gotA.Status)
	assert.Equal(t, models.StatusModified, gotB.Status)

	content := f.sink.byKind(notify.ConfigContentChanged)
	require.Len(t, content, 2)
	seen := map[string]bool{}
	for _, ev := range content {
		seen[ev.ConfigID.String()] = true
		require.NotNil(t, ev.TemplateID)
		assert.Equal(t, tpl.ID, *ev.TemplateID)
	}
	assert.True(t, seen[cfgA.ID.String()])
	assert.True(t, seen[cfgB.ID.String()])

	status := f.sink.byKind(notify.ConfigStatusChanged)
	require.Len(t, status, 1)
	assert.Equal(t, cfgB.ID, status[0].ConfigID)
	assert.Equal(t, models.StatusModified, status[0].Status)
}

func TestUpdateTemplate_NoCascadeWithoutRenderChange(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tpl := genericTemplate("wifi", nil, `{"a":1,"b":{"c":2}}`)
	require.NoError(t, f.eng.CreateTemplate(ctx, tpl, "tester"))
	cfg := newConfig("ap-1", nil)
	require.NoError(t, f.eng.CreateConfig(ctx, cfg, engine.RefsFromIDs(tpl.ID), "tester"))
	_, err := f.eng.ReportStatus(ctx, cfg.ID, models.StatusApplied)
	require.NoError(t, err)
	f.sink.reset()

	// rename only
	upd := *tpl
	upd.Name = "wifi v2"
	require.NoError(t, f.eng.UpdateTemplate(ctx, &upd))
	assert.Empty(t, f.sink.events)

	// default_values only
	upd.DefaultValues = datatypes.JSONMap{"ssid": "new"}
	require.NoError(t, f.eng.UpdateTemplate(ctx, &upd))
	assert.Empty(t, f.sink.events)

	// same body, different key order and whitespace
	upd.Config = datatypes.JSON(`{ "b": {"c": 2}, "a": 1 }`)
	require.NoError(t, f.eng.UpdateTemplate(ctx, &upd))
	assert.Empty(t, f.sink.events)

	got, err := f.mem.Configs().Get(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, got.Status)
}

func TestUpdateTemplate_CascadeIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tpl := genericTemplate("wifi", nil, `{"a":1}`)
	require.NoError(t, f.eng.CreateTemplate(ctx, tpl, "tester"))
	cfg := newConfig("ap-1", nil)
	require.NoError(t, f.eng.CreateConfig(ctx, cfg, engine.RefsFromIDs(tpl.ID), "tester"))
	f.sink.reset()

	upd := *tpl
	upd.Config = datatypes.JSON(`{"a":2}`)
	require.NoError(t, f.eng.UpdateTemplate(ctx, &upd))

	// dependent was already modified: content event yes, status event no
	assert.Len(t, f.sink.byKind(notify.ConfigContentChanged), 1)
	assert.Empty(t, f.sink.byKind(notify.ConfigStatusChanged))

	// saving the same body again does nothing
	f.sink.reset()
	require.NoError(t, f.eng.UpdateTemplate(ctx, &upd))
	assert.Empty(t, f.sink.events)
}

func TestOnTemplateSave_FirstSaveNeverCascades(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tpl := genericTemplate("fresh", nil, `{"a":1}`)
	require.NoError(t, f.eng.CreateTemplate(ctx, tpl, "tester"))
	f.sink.reset()

	require.NoError(t, f.eng.OnTemplateSave(ctx, tpl, nil))
	assert.Empty(t, f.sink.events)
}

func TestUpdateTemplate_SinkFailureAborts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tpl := genericTemplate("wifi", nil, `{"a":1}`)
	require.NoError(t, f.eng.CreateTemplate(ctx, tpl, "tester"))
	cfg := newConfig("ap-1", nil)
	require.NoError(t, f.eng.CreateConfig(ctx, cfg, engine.RefsFromIDs(tpl.ID), "tester"))

	f.sink.failOn = notify.ConfigContentChanged
	f.sink.err = errors.New("broker unavailable")

	upd := *tpl
	upd.Config = datatypes.JSON(`{"a":2}`)
	err := f.eng.UpdateTemplate(ctx, &upd)
	require.Error(t, err)
	assert.ErrorContains(t, err, "broker unavailable")
}

func TestDeleteTemplate_BlockedWhileAssigned(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tpl := genericTemplate("wifi", nil, `{"a":1}`)
	require.NoError(t, f.eng.CreateTemplate(ctx, tpl, "tester"))
	cfg := newConfig("ap-1", nil)
	require.NoError(t, f.eng.CreateConfig(ctx, cfg, engine.RefsFromIDs(tpl.ID), "tester"))

	err := f.eng.DeleteTemplate(ctx, tpl.ID)
	require.Error(t, err)
	assert.True(t, engine.IsValidation(err))
	assert.Contains(t, err.Error(), "cannot be deleted")

	require.NoError(t, f.eng.SetConfigTemplates(ctx, cfg.ID, engine.RefsFromIDs()))
	require.NoError(t, f.eng.DeleteTemplate(ctx, tpl.ID))

	_, err = f.mem.Templates().Get(ctx, tpl.ID)
	require.ErrorIs(t, err, engine.ErrNotFound)
}
