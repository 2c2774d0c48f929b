package admin

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"strata/internal/engine"
	"strata/internal/models"
	"strata/internal/secrets"
)

type Handler struct {
	d Dependencies
}

// problem мапит таксономию ошибок движка в problem+json:
// валидация и конфликт организаций — 400, отсутствие записи — 404.
func (h *Handler) problem(w http.ResponseWriter, err error) {
	var oe *engine.OrgMismatchError
	var ve *engine.ValidationError
	switch {
	case errors.As(err, &oe):
		models.WriteProblem(w, http.StatusBadRequest, "Organization Mismatch", oe.Msg,
			map[string]any{"field": oe.Field})
	case errors.As(err, &ve):
		models.WriteProblem(w, http.StatusBadRequest, "Validation Failed", ve.Msg,
			map[string]any{"field": ve.Field})
	case errors.Is(err, engine.ErrNotFound):
		models.WriteProblem(w, http.StatusNotFound, "Not Found", err.Error(), nil)
	default:
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", err.Error(), nil)
	}
}

func (h *Handler) badRequest(w http.ResponseWriter, detail string) {
	models.WriteProblem(w, http.StatusBadRequest, "Bad Request", detail, nil)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

// orgFilter читает ?organization_id= для списков.
func orgFilter(r *http.Request) (*uuid.UUID, error) {
	raw := r.URL.Query().Get("organization_id")
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// actor — имя оператора для аудита, из заголовка X-Actor.
func actor(r *http.Request) string {
	if a := strings.TrimSpace(r.Header.Get("X-Actor")); a != "" {
		return a
	}
	return "admin"
}

// ensureOrg проверяет, что организация из payload существует.
func (h *Handler) ensureOrg(r *http.Request, orgID *uuid.UUID) error {
	if orgID == nil {
		return nil
	}
	_, err := h.d.Orgs.Get(r.Context(), *orgID)
	return err
}

// ===== organizations =====

func (h *Handler) OrgList(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.d.Orgs.List(r.Context())
	if err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, orgs)
}

func (h *Handler) OrgCreate(w http.ResponseWriter, r *http.Request) {
	var in models.Organization
	if err := models.DecodeJSON(w, r, &in); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		h.badRequest(w, "name cannot be blank")
		return
	}
	if in.Slug == "" {
		in.Slug = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(in.Name), " ", "-"))
	}
	in.Enabled = true
	if err := h.d.Orgs.Create(r.Context(), &in); err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, in)
}

func (h *Handler) OrgSettingsGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.badRequest(w, "invalid organization id")
		return
	}
	if _, err := h.d.Orgs.Get(r.Context(), id); err != nil {
		h.problem(w, err)
		return
	}
	st, err := h.d.Orgs.Settings(r.Context(), id)
	if err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) OrgSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.badRequest(w, "invalid organization id")
		return
	}
	var in struct {
		RegistrationEnabled *bool  `json:"registration_enabled"`
		SharedSecret        string `json:"shared_secret"`
		RotateSecret        bool   `json:"rotate_secret"`
	}
	if err := models.DecodeJSON(w, r, &in); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	st, err := h.d.Orgs.Settings(r.Context(), id)
	if err != nil {
		h.problem(w, err)
		return
	}
	if in.RegistrationEnabled != nil {
		st.RegistrationEnabled = *in.RegistrationEnabled
	}
	switch {
	case in.RotateSecret:
		st.SharedSecret = secrets.GenerateKey()
	case in.SharedSecret != "":
		if !secrets.ValidKey(in.SharedSecret) {
			h.badRequest(w, "shared_secret must not contain spaces, slashes or dots")
			return
		}
		st.SharedSecret = in.SharedSecret
	}
	if err := h.d.Orgs.SaveSettings(r.Context(), st); err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, st)
}

// ===== templates =====

func (h *Handler) TemplateList(w http.ResponseWriter, r *http.Request) {
	org, err := orgFilter(r)
	if err != nil {
		h.badRequest(w, "invalid organization_id filter")
		return
	}
	tpls, err := h.d.Templates.List(r.Context(), org)
	if err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, tpls)
}

func (h *Handler) TemplateCreate(w http.ResponseWriter, r *http.Request) {
	var in models.Template
	in.AutoCert = h.d.CFG.VPN.AutoCert // дефолт политики, тело может переопределить
	if err := models.DecodeJSON(w, r, &in); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	in.ID = uuid.Nil
	if err := h.ensureOrg(r, in.OrgID); err != nil {
		h.problem(w, err)
		return
	}
	if err := h.d.Engine.CreateTemplate(r.Context(), &in, actor(r)); err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, in)
}

func (h *Handler) TemplateGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.badRequest(w, "invalid template id")
		return
	}
	tpl, err := h.d.Templates.Get(r.Context(), id)
	if err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, tpl)
}

// TemplateUpdate принимает частичный документ: поля, которых нет в теле,
// остаются как в хранилище. Сохранение идёт через движок, так что
// изменение backend/config каскадом инвалидирует зависимые конфиги.
func (h *Handler) TemplateUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.badRequest(w, "invalid template id")
		return
	}
	stored, err := h.d.Templates.Get(r.Context(), id)
	if err != nil {
		h.problem(w, err)
		return
	}
	upd := *stored
	if err := models.DecodeJSON(w, r, &upd); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	upd.ID = id
	if err := h.ensureOrg(r, upd.OrgID); err != nil {
		h.problem(w, err)
		return
	}
	if err := h.d.Engine.UpdateTemplate(r.Context(), &upd); err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, upd)
}

func (h *Handler) TemplateDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.badRequest(w, "invalid template id")
		return
	}
	if err := h.d.Engine.DeleteTemplate(r.Context(), id); err != nil {
		h.problem(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) TemplateClone(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.badRequest(w, "invalid template id")
		return
	}
	clone, err := h.d.Engine.CloneTemplate(r.Context(), id, actor(r))
	if err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, clone)
}

// ===== configs =====

func (h *Handler) ConfigList(w http.ResponseWriter, r *http.Request) {
	org, err := orgFilter(r)
	if err != nil {
		h.badRequest(w, "invalid organization_id filter")
		return
	}
	cfgs, err := h.d.Configs.List(r.Context(), org)
	if err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, cfgs)
}

func (h *Handler) ConfigCreate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		models.Config
		TemplateIDs []uuid.UUID `json:"template_ids"`
	}
	if err := models.DecodeJSON(w, r, &in); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	in.Config.ID = uuid.Nil
	if err := h.ensureOrg(r, in.OrgID); err != nil {
		h.problem(w, err)
		return
	}
	// пустой template_ids означает "навесь default-шаблоны организации"
	if err := h.d.Engine.CreateConfig(r.Context(), &in.Config, engine.RefsFromIDs(in.TemplateIDs...), actor(r)); err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, in.Config)
}

func (h *Handler) ConfigGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.badRequest(w, "invalid config id")
		return
	}
	cfg, err := h.d.Configs.Get(r.Context(), id)
	if err != nil {
		h.problem(w, err)
		return
	}
	tpls, err := h.d.Configs.TemplatesOf(r.Context(), id)
	if err != nil {
		h.problem(w, err)
		return
	}
	cfg.Templates = tpls
	models.WriteJSON(w, http.StatusOK, cfg)
}

func (h *Handler) ConfigUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.badRequest(w, "invalid config id")
		return
	}
	stored, err := h.d.Configs.Get(r.Context(), id)
	if err != nil {
		h.problem(w, err)
		return
	}
	upd := *stored
	if err := models.DecodeJSON(w, r, &upd); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	upd.ID = id
	if err := h.ensureOrg(r, upd.OrgID); err != nil {
		h.problem(w, err)
		return
	}
	if err := h.d.Engine.SaveConfig(r.Context(), &upd); err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, upd)
}

func (h *Handler) ConfigSetTemplates(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.badRequest(w, "invalid config id")
		return
	}
	var in struct {
		TemplateIDs []uuid.UUID `json:"template_ids"`
	}
	if err := models.DecodeJSON(w, r, &in); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if err := h.d.Engine.SetConfigTemplates(r.Context(), id, engine.RefsFromIDs(in.TemplateIDs...)); err != nil {
		h.problem(w, err)
		return
	}
	tpls, err := h.d.Configs.TemplatesOf(r.Context(), id)
	if err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, tpls)
}

func (h *Handler) ConfigContext(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.badRequest(w, "invalid config id")
		return
	}
	merged, err := h.d.Engine.ContextFor(r.Context(), id)
	if err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, merged)
}

func (h *Handler) ConfigRender(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.badRequest(w, "invalid config id")
		return
	}
	out, err := h.d.Renderer.Render(r.Context(), id)
	if err != nil {
		h.problem(w, err)
		return
	}
	h.writeArtifact(w, r, out.Artifact, out.Checksum)
}

func (h *Handler) ConfigRenderByKey(w http.ResponseWriter, r *http.Request) {
	out, _, err := h.d.Renderer.RenderByKey(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		h.problem(w, err)
		return
	}
	h.writeArtifact(w, r, out.Artifact, out.Checksum)
}

// writeArtifact отдаёт tar.gz с контрольной суммой; ?checksum= включает
// поведение 304 — вызывающий с актуальным артефактом не качает его заново.
func (h *Handler) writeArtifact(w http.ResponseWriter, r *http.Request, artifact []byte, checksum string) {
	if prev := r.URL.Query().Get("checksum"); prev != "" && prev == checksum {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("X-Checksum", checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact)
}

func (h *Handler) ConfigReportStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.badRequest(w, "invalid config id")
		return
	}
	h.reportStatus(w, r, id)
}

// ConfigReportByKey — путь для внешней системы применения, адресующей
// конфиг ключом, а не id.
func (h *Handler) ConfigReportByKey(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.d.Configs.ByKey(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		h.problem(w, err)
		return
	}
	h.reportStatus(w, r, cfg.ID)
}

func (h *Handler) reportStatus(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var in struct {
		Status models.ConfigStatus `json:"status"`
	}
	if err := models.DecodeJSON(w, r, &in); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	cfg, err := h.d.Engine.ReportStatus(r.Context(), id, in.Status)
	if err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, cfg)
}

// ===== vpns =====

func (h *Handler) VpnList(w http.ResponseWriter, r *http.Request) {
	org, err := orgFilter(r)
	if err != nil {
		h.badRequest(w, "invalid organization_id filter")
		return
	}
	vpns, err := h.d.Vpns.List(r.Context(), org)
	if err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, vpns)
}

func (h *Handler) VpnCreate(w http.ResponseWriter, r *http.Request) {
	var in models.Vpn
	if err := models.DecodeJSON(w, r, &in); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	in.ID = uuid.Nil
	if err := h.ensureOrg(r, in.OrgID); err != nil {
		h.problem(w, err)
		return
	}
	if err := h.d.Engine.CreateVpn(r.Context(), &in, actor(r)); err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, in)
}

func (h *Handler) VpnGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.badRequest(w, "invalid vpn id")
		return
	}
	v, err := h.d.Vpns.Get(r.Context(), id)
	if err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) VpnUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.badRequest(w, "invalid vpn id")
		return
	}
	stored, err := h.d.Vpns.Get(r.Context(), id)
	if err != nil {
		h.problem(w, err)
		return
	}
	upd := *stored
	if err := models.DecodeJSON(w, r, &upd); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	upd.ID = id
	if err := h.ensureOrg(r, upd.OrgID); err != nil {
		h.problem(w, err)
		return
	}
	if err := h.d.Engine.SaveVpn(r.Context(), &upd); err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, upd)
}

// ===== pki =====

func (h *Handler) CaList(w http.ResponseWriter, r *http.Request) {
	org, err := orgFilter(r)
	if err != nil {
		h.badRequest(w, "invalid organization_id filter")
		return
	}
	cas, err := h.d.CAs.ListCAs(r.Context(), org)
	if err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, cas)
}

func (h *Handler) CaCreate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name     string     `json:"name"`
		OrgID    *uuid.UUID `json:"organization_id"`
		TTLHours int        `json:"ttl_hours"`
	}
	if err := models.DecodeJSON(w, r, &in); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		h.badRequest(w, "name cannot be blank")
		return
	}
	if err := h.ensureOrg(r, in.OrgID); err != nil {
		h.problem(w, err)
		return
	}
	ttl := h.d.CFG.CATTLDuration()
	if in.TTLHours > 0 {
		ttl = time.Duration(in.TTLHours) * time.Hour
	}
	ca, err := h.d.PKI.EnsureCA(r.Context(), in.Name, in.OrgID, ttl)
	if err != nil {
		h.problem(w, err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, ca)
}
