// Package controller — рендер-пайплайн конфигов: сборка контекста,
// слияние тел шаблонов и конфига, подстановка переменных, рендер
// backend'ом и упаковка артефакта. Готовые артефакты кэшируются;
// события изменения контента сбрасывают кэш.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net"
	"sort"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"strata/internal/engine"
	"strata/internal/logs"
	"strata/internal/models"
	"strata/internal/notify"
	"strata/internal/render"
	"strata/internal/render/netjson"
	"strata/internal/render/uci"
	"strata/internal/tarball"
)

// Источники данных пайплайна.
type ConfigSource interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Config, error)
	ByKey(ctx context.Context, key string) (*models.Config, error)
	TemplatesOf(ctx context.Context, configID uuid.UUID) ([]models.Template, error)
	SaveRendered(ctx context.Context, id uuid.UUID, artifact []byte, checksum string) error
}

type VpnSource interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Vpn, error)
}

type ClientSource interface {
	ForConfig(ctx context.Context, configID uuid.UUID) ([]models.VpnClient, error)
}

type CertSource interface {
	GetCA(ctx context.Context, id uuid.UUID) (*models.Ca, error)
	GetCert(ctx context.Context, id uuid.UUID) (*models.Cert, error)
}

// Rendered — готовый артефакт конфига.
type Rendered struct {
	Artifact []byte
	Checksum string
}

type CacheOptions struct {
	NumCounters int64
	MaxCost     int64 // суммарный размер артефактов в байтах
	TTL         time.Duration
}

type Renderer struct {
	configs ConfigSource
	vpns    VpnSource
	clients ClientSource
	certs   CertSource

	cache *ristretto.Cache[string, Rendered]
	ttl   time.Duration
}

func NewRenderer(configs ConfigSource, vpns VpnSource, clients ClientSource, certs CertSource, opts CacheOptions) (*Renderer, error) {
	if opts.NumCounters <= 0 {
		opts.NumCounters = 100_000
	}
	if opts.MaxCost <= 0 {
		opts.MaxCost = 64 << 20
	}
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Minute
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, Rendered]{
		NumCounters: opts.NumCounters,
		MaxCost:     opts.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("render cache: %w", err)
	}
	return &Renderer{
		configs: configs,
		vpns:    vpns,
		clients: clients,
		certs:   certs,
		cache:   cache,
		ttl:     opts.TTL,
	}, nil
}

// BindHub подписывает рендерер на шину: изменение контента конфига
// (локальное или каскадом от шаблона) сбрасывает кэшированный артефакт.
func (r *Renderer) BindHub(h *notify.Hub) {
	h.Subscribe(notify.ConfigContentChanged, func(ev notify.Event) error {
		r.Invalidate(ev.ConfigID)
		return nil
	})
}

func (r *Renderer) Invalidate(configID uuid.UUID) {
	r.cache.Del(configID.String())
}

func (r *Renderer) Close() {
	r.cache.Close()
}

// Render отдаёт артефакт конфига, из кэша или собрав заново.
func (r *Renderer) Render(ctx context.Context, configID uuid.UUID) (Rendered, error) {
	key := configID.String()
	if hit, ok := r.cache.Get(key); ok {
		return hit, nil
	}
	out, err := r.build(ctx, configID)
	if err != nil {
		return Rendered{}, err
	}
	r.cache.SetWithTTL(key, out, int64(len(out.Artifact)), r.ttl)
	return out, nil
}

// RenderByKey — то же по ключу конфига (путь для внешних потребителей).
func (r *Renderer) RenderByKey(ctx context.Context, key string) (Rendered, *models.Config, error) {
	cfg, err := r.configs.ByKey(ctx, key)
	if err != nil {
		return Rendered{}, nil, err
	}
	out, err := r.Render(ctx, cfg.ID)
	if err != nil {
		return Rendered{}, nil, err
	}
	return out, cfg, nil
}

func (r *Renderer) build(ctx context.Context, configID uuid.UUID) (Rendered, error) {
	cfg, err := r.configs.Get(ctx, configID)
	if err != nil {
		return Rendered{}, err
	}
	tpls, err := r.configs.TemplatesOf(ctx, configID)
	if err != nil {
		return Rendered{}, err
	}

	// тела шаблонов в порядке назначения, тело конфига последним
	docs := make([]map[string]any, 0, len(tpls)+1)
	for i := range tpls {
		doc, err := netjson.ParseBody(tpls[i].Config)
		if err != nil {
			return Rendered{}, fmt.Errorf("template %s: %w", tpls[i].Name, err)
		}
		docs = append(docs, doc)
	}
	own, err := netjson.ParseBody(cfg.Config)
	if err != nil {
		return Rendered{}, fmt.Errorf("config %s: %w", cfg.Name, err)
	}
	docs = append(docs, own)
	merged := netjson.Merge(docs...)

	vars := engine.MergeContext(tpls, cfg)
	extra := map[string][]byte{}
	if err := r.applyVpnMemberships(ctx, cfg, vars, extra); err != nil {
		return Rendered{}, err
	}

	merged, err = netjson.ApplyVars(merged, vars)
	if err != nil {
		return Rendered{}, err
	}

	files, err := render.Files(cfg.Backend, merged, uci.Options{DeviceHostname: cfg.Name})
	if err != nil {
		return Rendered{}, err
	}
	artifact, sum, err := tarball.Build(files, extra)
	if err != nil {
		return Rendered{}, err
	}

	if sum != cfg.RenderedChecksum {
		if err := r.configs.SaveRendered(ctx, cfg.ID, artifact, sum); err != nil {
			return Rendered{}, err
		}
	}
	logs.Logger.WithFields(logrus.Fields{
		"config_id": cfg.ID,
		"checksum":  sum,
		"templates": len(tpls),
	}).Debug("config rendered")
	return Rendered{Artifact: artifact, Checksum: sum}, nil
}

// applyVpnMemberships дополняет рендер членствами конфига в VPN:
// переменные wireguard-клиента и файлы сертификатов openvpn.
func (r *Renderer) applyVpnMemberships(ctx context.Context, cfg *models.Config, vars map[string]any, extra map[string][]byte) error {
	clients, err := r.clients.ForConfig(ctx, cfg.ID)
	if err != nil {
		return err
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].VpnID.String() < clients[j].VpnID.String()
	})
	for _, cl := range clients {
		v, err := r.vpns.Get(ctx, cl.VpnID)
		if err != nil {
			return err
		}
		if v.Backend == models.VpnWireGuard && cl.PrivateKey != "" {
			if _, ok := vars["wg_private_key"]; !ok {
				addr, err := wgAddress(v, cfg.ID)
				if err != nil {
					return err
				}
				vars["wg_private_key"] = cl.PrivateKey
				vars["wg_address"] = addr
			}
		}
		if cl.CertID != nil {
			cert, err := r.certs.GetCert(ctx, *cl.CertID)
			if err != nil {
				return err
			}
			ca, err := r.certs.GetCA(ctx, cert.CaID)
			if err != nil {
				return err
			}
			dir := "etc/openvpn/" + v.Name + "/"
			extra[dir+"ca.crt"] = ca.CertPEM
			extra[dir+"client.crt"] = cert.CertPEM
			extra[dir+"client.key"] = cert.KeyPEM
		}
	}
	return nil
}

// wgAddress — адрес клиента внутри подсети VPN (ключ subnet в серверных
// настройках), детерминированно от id конфига. Пул на один /24; крупнее —
// нужен настоящий аллокатор.
func wgAddress(v *models.Vpn, configID uuid.UUID) (string, error) {
	subnet := "10.0.0.0/24"
	if len(v.Config) > 0 {
		var m map[string]any
		if json.Unmarshal(v.Config, &m) == nil {
			if s, ok := m["subnet"].(string); ok && s != "" {
				subnet = s
			}
		}
	}
	_, ipnet, err := net.ParseCIDR(subnet)
	if err != nil {
		return "", fmt.Errorf("vpn %s: bad subnet: %w", v.Name, err)
	}
	base := ipnet.IP.To4()
	if base == nil {
		return "", fmt.Errorf("vpn %s: only IPv4 subnets are supported", v.Name)
	}
	h := fnv.New32a()
	h.Write(configID[:])
	host := 2 + int(h.Sum32()%250)
	ip := net.IPv4(base[0], base[1], base[2], byte(host))
	return ip.String() + "/32", nil
}
