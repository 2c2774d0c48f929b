// Package engine реализует доменную логику шаблонов и конфигов:
// сборку контекста переменных, валидацию связей, авто-провижининг
// vpn-шаблонов, каскад статусов при изменении шаблона и клонирование.
// Хранилища и выпуск сертификатов подключаются через интерфейсы,
// описанные здесь же со стороны потребителя.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"

	"github.com/google/uuid"

	"strata/internal/logs"
	"strata/internal/models"
	"strata/internal/notify"
)

type TemplateStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Template, error)
	// ByIDs отдаёт шаблоны в порядке переданных id; на отсутствующий id — ErrNotFound.
	ByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Template, error)
	// NameExists проверяет имя по всему корпусу шаблонов, без учёта организации.
	NameExists(ctx context.Context, name string) (bool, error)
	// DefaultsFor — default-шаблоны, доступные организации (её собственные и общие)
	// и совместимые с backend'ом.
	DefaultsFor(ctx context.Context, orgID *uuid.UUID, backend string) ([]models.Template, error)
	Create(ctx context.Context, t *models.Template) error
	Save(ctx context.Context, t *models.Template) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ConfigStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Config, error)
	Create(ctx context.Context, c *models.Config) error
	Save(ctx context.Context, c *models.Config) error
	// Dependents — конфиги, на которые назначен шаблон.
	Dependents(ctx context.Context, templateID uuid.UUID) ([]models.Config, error)
	BulkSetStatus(ctx context.Context, ids []uuid.UUID, st models.ConfigStatus) error
	// TemplatesOf — шаблоны конфига в порядке назначения (sort_order).
	TemplatesOf(ctx context.Context, configID uuid.UUID) ([]models.Template, error)
	SetTemplates(ctx context.Context, configID uuid.UUID, templateIDs []uuid.UUID) error
}

type VpnStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Vpn, error)
	Create(ctx context.Context, v *models.Vpn) error
	Save(ctx context.Context, v *models.Vpn) error
}

// PKIStore нужен движку только для проверки организационных связей
// CA/сертификата VPN; выпуском занимается CertIssuer.
type PKIStore interface {
	GetCA(ctx context.Context, id uuid.UUID) (*models.Ca, error)
	GetCert(ctx context.Context, id uuid.UUID) (*models.Cert, error)
}

type VpnClientStore interface {
	ForConfig(ctx context.Context, configID uuid.UUID) ([]models.VpnClient, error)
	Create(ctx context.Context, c *models.VpnClient) error
	Delete(ctx context.Context, vpnID, configID uuid.UUID) error
}

// TxRunner очерчивает транзакцию: fn выполняется атомарно, ошибка fn
// откатывает всё, включая уже отправленные в рамках fn события.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type CertIssuer interface {
	IssueClientCert(ctx context.Context, vpn *models.Vpn, cn string) (*models.Cert, error)
}

// AuditLogger фиксирует факт создания объекта оператором (после записи в БД).
type AuditLogger interface {
	LogAddition(ctx context.Context, actor, object string, id uuid.UUID)
}

type Deps struct {
	Templates TemplateStore
	Configs   ConfigStore
	Vpns      VpnStore
	Clients   VpnClientStore
	PKI       PKIStore
	Tx        TxRunner
	Events    notify.Sink
	Certs     CertIssuer
	Audit     AuditLogger
}

type Engine struct {
	templates TemplateStore
	configs   ConfigStore
	vpns      VpnStore
	clients   VpnClientStore
	pki       PKIStore
	tx        TxRunner
	events    notify.Sink
	certs     CertIssuer
	audit     AuditLogger
}

func New(d Deps) *Engine {
	e := &Engine{
		templates: d.Templates,
		configs:   d.Configs,
		vpns:      d.Vpns,
		clients:   d.Clients,
		pki:       d.PKI,
		tx:        d.Tx,
		events:    d.Events,
		certs:     d.Certs,
		audit:     d.Audit,
	}
	if e.tx == nil {
		e.tx = inlineTx{}
	}
	if e.events == nil {
		e.events = notify.Discard{}
	}
	if e.audit == nil {
		e.audit = logAudit{}
	}
	return e
}

// inlineTx — для хранилищ без транзакций (память, тесты).
type inlineTx struct{}

func (inlineTx) InTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type logAudit struct{}

func (logAudit) LogAddition(_ context.Context, actor, object string, id uuid.UUID) {
	logs.Logger.WithFields(map[string]any{
		"actor":  actor,
		"object": object,
		"id":     id,
	}).Info("object created")
}

// ===== JSON-хелперы =====

// emptyBody: отсутствующее тело, null и {} считаются пустыми
// (пустой vpn-шаблон заполняется авто-клиентом, см. provision.go).
func emptyBody(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return true
	}
	s := string(trimmed)
	return s == "null" || s == "{}"
}

// jsonEqual сравнивает тела по значению, а не по байтам: перестановка
// ключей или пробелы не считаются изменением.
func jsonEqual(a, b []byte) bool {
	if emptyBody(a) && emptyBody(b) {
		return true
	}
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return bytes.Equal(a, b)
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return bytes.Equal(a, b)
	}
	return reflect.DeepEqual(av, bv)
}

func copyJSON(raw []byte) []byte {
	if raw == nil {
		return nil
	}
	return append([]byte(nil), raw...)
}

func copyJSONMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
