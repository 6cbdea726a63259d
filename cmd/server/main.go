package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/AgaveCraft/PlotSquared/internal/api"
	"github.com/AgaveCraft/PlotSquared/internal/auth"
	"github.com/AgaveCraft/PlotSquared/internal/config"
	"github.com/AgaveCraft/PlotSquared/internal/eventbus"
	"github.com/AgaveCraft/PlotSquared/internal/export"
	"github.com/AgaveCraft/PlotSquared/internal/identity"
	"github.com/AgaveCraft/PlotSquared/internal/logging"
	"github.com/AgaveCraft/PlotSquared/internal/observability"
	"github.com/AgaveCraft/PlotSquared/internal/plot"
	"github.com/AgaveCraft/PlotSquared/internal/queue"
	"github.com/AgaveCraft/PlotSquared/internal/regionfile"
	"github.com/AgaveCraft/PlotSquared/internal/regionmgr"
	"github.com/AgaveCraft/PlotSquared/internal/storage"
	"github.com/AgaveCraft/PlotSquared/internal/world"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $PLOT_CONFIG)")
	issueFor := flag.String("issue-token", "", "выпустить токен API для UUID игрока и выйти")
	issueAdmin := flag.Bool("admin", false, "выпускаемый токен даёт права администратора")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	var issuer *auth.Issuer
	if cfg.Server.JWTSecret != "" {
		if issuer, err = auth.NewIssuer(cfg.Server.JWTSecret, cfg.Server.TokenTTL); err != nil {
			log.Fatalf("❌ Ошибка настройки JWT: %v", err)
		}
	}
	if *issueFor != "" {
		issueToken(issuer, *issueFor, *issueAdmin)
		return
	}

	if err := logging.InitDefaultLogger(cfg.Logging.Dir, logging.ParseLevel(cfg.Logging.Level)); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	logging.Info("🧱 Запуск сервиса плотов: миры=%v, менеджер регионов=%s, хранилище=%s",
		cfg.Worlds.Names, cfg.Regions.Kind, cfg.Storage.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Закрываются в обратном порядке при завершении
	var closers []func(context.Context) error
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](shutdownCtx); err != nil {
				logging.Error("❌ Ошибка остановки компонента: %v", err)
			}
		}
		logging.Info("👋 Сервис плотов остановлен")
	}()
	closeWith := func(c io.Closer) {
		closers = append(closers, func(context.Context) error { return c.Close() })
	}

	// === ТРАССИРОВКА ===
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, observability.Options{
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			logging.Warn("⚠️ OpenTelemetry недоступен: %v", err)
		} else {
			closers = append(closers, shutdown)
		}
	}

	// === ШИНА СОБЫТИЙ ===
	bus, err := newEventBus(cfg.EventBus)
	if err != nil {
		logging.Error("❌ Ошибка подключения к шине событий: %v", err)
		return
	}
	eventbus.Init(bus)
	closeWith(bus)
	if _, err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("⚠️ Не удалось подписать логгер событий: %v", err)
	}
	if err := eventbus.RegisterMetrics(bus, prometheus.DefaultRegisterer); err != nil {
		logging.Warn("⚠️ Метрики шины событий не зарегистрированы: %v", err)
	}

	// === МИРЫ ===
	worlds := world.NewRegistry(cfg.Worlds.Container)
	var store world.Store
	switch cfg.Storage.Backend {
	case "badger":
		ws, err := storage.NewWorldStorage(cfg.Storage.BadgerPath, worlds)
		if err != nil {
			logging.Error("❌ Ошибка открытия хранилища миров: %v", err)
			return
		}
		closeWith(ws)
		store = ws
	default:
		store = world.NewMemoryStore()
	}

	gq := queue.NewGlobalQueue(store, queue.NewMetrics(prometheus.DefaultRegisterer))
	closers = append(closers, gq.Shutdown)

	areas := make(map[string]*plot.Area, len(cfg.Worlds.Names))
	for _, name := range cfg.Worlds.Names {
		worlds.Handle(name)
		areas[name] = newArea(name, cfg)
	}

	// === МЕНЕДЖЕР РЕГИОНОВ ===
	kind, err := regionmgr.ParseKind(cfg.Regions.Kind)
	if err != nil {
		logging.Error("❌ %v", err)
		return
	}
	regions, err := regionmgr.New(kind, regionmgr.Options{
		Queue:            gq,
		Generator:        newGenerator(cfg.Worlds),
		AcceleratedClear: cfg.Regions.AcceleratedClear,
		MinY:             cfg.Worlds.MinY,
		MaxY:             cfg.Worlds.MaxY,
	})
	if err != nil {
		logging.Error("❌ Ошибка создания менеджера регионов: %v", err)
		return
	}

	// === ПЛОТЫ И ИГРОКИ ===
	var plots plot.Repository
	switch cfg.Plots.Repository {
	case "mysql":
		repo, err := storage.NewMariaPlotRepo(ctx, cfg.Plots.MySQLDSN)
		if err != nil {
			logging.Error("❌ Ошибка подключения к MariaDB: %v", err)
			return
		}
		closeWith(repo)
		plots = repo
	default:
		plots = storage.NewMemoryPlotRepo()
	}

	lookup, err := newLookup(ctx, cfg.Identity, &closers)
	if err != nil {
		logging.Error("❌ Ошибка подключения справочника игроков: %v", err)
		return
	}
	trust := plot.NewTrustService(identity.NewResolver(lookup, cfg.Identity.LookupTimeout), plots, cfg.Plots.MaxTrusted)

	exporter := export.New(gq, worlds, regionfile.NewLocator(cfg.Export.RegionExtension))
	// Останавливается раньше очередей: начатые выгрузки должны вернуть точку появления.
	closers = append(closers, exporter.Shutdown)

	// === REST API ===
	rs := api.NewRestServer(api.Config{
		Port:     fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		Areas:    areas,
		Plots:    plots,
		Queue:    gq,
		Regions:  regions,
		Exporter: exporter,
		Trust:    trust,
		Sink:     export.FileSink{Dir: cfg.Export.OutputDir},
		Auth:     issuer,
	})
	closers = append(closers, rs.Stop)

	errCh := make(chan error, 1)
	go func() { errCh <- rs.Start() }()

	logging.Info("✅ Сервис плотов запущен")
	logging.Info("   🌐 REST API: http://localhost:%d", cfg.Server.GetRESTPort())
	logging.Info("   ❤️  Health check: http://localhost:%d/health", cfg.Server.GetRESTPort())
	if issuer != nil {
		logging.Info("   🔐 JWT авторизация активирована")
	}

	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, останавливаем сервис...")
	case err := <-errCh:
		if err != nil {
			logging.Error("❌ REST API остановлен с ошибкой: %v", err)
		}
	}
}

func issueToken(issuer *auth.Issuer, player string, admin bool) {
	if issuer == nil {
		log.Fatalf("❌ server.jwt_secret не задан")
	}
	id, err := uuid.Parse(player)
	if err != nil {
		log.Fatalf("❌ Некорректный UUID игрока: %v", err)
	}
	token, err := issuer.Issue(id, admin)
	if err != nil {
		log.Fatalf("❌ Ошибка выпуска токена: %v", err)
	}
	fmt.Println(token)
}

func newEventBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		logging.Info("🚌 Шина событий: in-memory")
		return eventbus.NewMemoryBus(1024), nil
	}
	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
	if err != nil {
		return nil, err
	}
	logging.Info("🚌 Шина событий: NATS JetStream %s (stream=%s)", cfg.URL, cfg.Stream)
	return bus, nil
}

func newLookup(ctx context.Context, cfg config.IdentityConfig, closers *[]func(context.Context) error) (identity.Lookup, error) {
	var lookup identity.Lookup
	switch cfg.Backend {
	case "mongo":
		m, err := identity.NewMongoLookup(ctx, identity.MongoConfig{
			URI:        cfg.MongoURI,
			Database:   cfg.Database,
			Collection: cfg.Collection,
		})
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, m.Close)
		lookup = m
	default:
		lookup = identity.NewMemoryLookup()
	}

	if cfg.RedisAddr == "" {
		return lookup, nil
	}
	cached, err := identity.NewCachedLookup(lookup, cfg.RedisAddr, cfg.CacheTTL)
	if err != nil {
		logging.Warn("⚠️ Redis %s недоступен, кэш игроков отключен: %v", cfg.RedisAddr, err)
		return lookup, nil
	}
	*closers = append(*closers, func(context.Context) error { return cached.Close() })
	return cached, nil
}

func newArea(name string, cfg *config.Config) *plot.Area {
	var mgr plot.Manager
	switch cfg.Plots.Layout {
	case "flat":
		mgr = &plot.FlatManager{Floor: world.Grass, Height: cfg.Plots.FloorHeight}
	default:
		mgr = plot.NewHybridManager(cfg.Plots.FloorHeight)
	}
	return &plot.Area{World: name, MinY: cfg.Worlds.MinY, MaxY: cfg.Worlds.MaxY, Manager: mgr}
}

func newGenerator(cfg config.WorldsConfig) world.Generator {
	if cfg.Generator == "flat" {
		return world.NewFlatGenerator(cfg.MinY)
	}
	return world.NewPerlinGenerator(cfg.Seed)
}
