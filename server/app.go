package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"strata/config"
	"strata/internal/admin"
	"strata/internal/controller"
	"strata/internal/db"
	"strata/internal/engine"
	"strata/internal/health"
	"strata/internal/logs"
	"strata/internal/middleware"
	"strata/internal/models"
	"strata/internal/notify"
	"strata/internal/pki"
)

type App struct {
	cfg        *config.Config
	db         *gorm.DB
	Router     *mux.Router
	httpServer *http.Server

	hub      *notify.Hub
	nats     *notify.NATSSink
	renderer *controller.Renderer

	ctx    context.Context
	cancel context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) {
	a.cfg = cfg

	/* 1) Логи */
	logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})

	/* 2) DB (опционально) */
	if drv := a.cfg.Database.Driver; drv != "" {
		d, err := db.Open(drv, a.cfg.Database.DSN)
		if err != nil {
			log.Fatalf("db open failed: %v", err)
		}
		a.db = d

		if err := a.db.AutoMigrate(
			&models.Organization{},
			&models.OrgConfigSettings{},
			&models.Template{},
			&models.TemplateAssignment{},
			&models.Config{},
			&models.Vpn{},
			&models.VpnClient{},
			&models.Ca{},
			&models.Cert{},
		); err != nil {
			log.Fatalf("db migrate failed: %v", err)
		}
	}

	st := memoryStores()
	if a.db != nil {
		st = gormStores(a.db)
	}

	/* 3) Шина событий: хаб для внутренних подписчиков, опционально лог и NATS */
	a.hub = notify.NewHub()
	sinks := notify.Multi{}
	if a.cfg.Notify.LogEvents {
		sinks = append(sinks, notify.LogSink{})
	}
	sinks = append(sinks, a.hub)
	if url := a.cfg.Notify.NATSURL; url != "" {
		ns, err := notify.ConnectNATS(url, a.cfg.Notify.SubjectPrefix)
		if err != nil {
			log.Fatalf("nats connect failed: %v", err)
		}
		a.nats = ns
		sinks = append(sinks, ns)
	}

	/* 4) Домены: PKI, движок шаблонов, рендерер */
	pkiSvc := pki.New(st.pkis)

	eng := engine.New(engine.Deps{
		Templates: st.templates,
		Configs:   st.configs,
		Vpns:      st.vpns,
		Clients:   st.clients,
		PKI:       st.pkis,
		Tx:        st.tx,
		Events:    sinks,
		Certs:     pkiSvc,
	})

	renderer, err := controller.NewRenderer(st.configs, st.vpns, st.clients, st.pkis, controller.CacheOptions{
		MaxCost: a.cfg.Render.CacheMaxBytes,
		TTL:     time.Duration(a.cfg.Render.CacheTTLMinutes) * time.Minute,
	})
	if err != nil {
		log.Fatalf("renderer init failed: %v", err)
	}
	renderer.BindHub(a.hub)
	a.renderer = renderer

	/* 5) Router + middleware */
	a.Router = mux.NewRouter().StrictSlash(true)
	a.Router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.LoggerMW,
	)

	/* 6) Health */
	health.RegisterRoutesWithDB(a.Router, a.db) // /healthz, /readyz

	/* 7) Admin API */
	admin.Attach(a.Router, admin.Dependencies{
		Engine:    eng,
		Renderer:  renderer,
		Orgs:      st.orgs,
		Templates: st.templates,
		Configs:   st.configs,
		Vpns:      st.vpns,
		CAs:       st.pkis,
		PKI:       pkiSvc,
		CFG:       a.cfg,
	})

	/* (необязательно) вывести известные маршруты в лог при старте */
	_ = a.Router.Walk(func(rt *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		if len(methods) == 0 {
			methods = []string{"ANY"}
		}
		log.Printf("route: %-6v %s", methods, path)
		return nil
	})
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return fmt.Errorf("server not initialized")
	}

	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		logs.Logger.Infof("shutdown signal: %s", s)
		a.cancel()
	}()

	// Жёсткие таймауты — это важно для production
	a.httpServer = &http.Server{
		Addr:              bind,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logs.Logger.Infof("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logs.Logger.Fatalf("http server error: %v", err)
		}
	}()

	<-a.ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logs.Logger.Errorf("http shutdown: %v", err)
	}

	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.nats != nil {
		_ = a.nats.Close()
	}
	if a.hub != nil {
		_ = a.hub.Close()
	}
	return nil
}
