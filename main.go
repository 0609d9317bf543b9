package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	alertapp "safewatch-cloud/internal/alerts/application"
	alerts "safewatch-cloud/internal/alerts/domain"
	alertinterfaces "safewatch-cloud/internal/alerts/interfaces"
	apihttp "safewatch-cloud/internal/api/http"
	commandshttp "safewatch-cloud/internal/commands/interfaces/http"
	"safewatch-cloud/internal/config"
	"safewatch-cloud/internal/eventing"
	"safewatch-cloud/internal/health"
	"safewatch-cloud/internal/logging"
	"safewatch-cloud/internal/observability/metrics"
	"safewatch-cloud/internal/query"
	"safewatch-cloud/internal/telemetry/application"
	telemetry "safewatch-cloud/internal/telemetry/domain"
	memorystore "safewatch-cloud/internal/telemetry/infrastructure/memory"
	postgresstore "safewatch-cloud/internal/telemetry/infrastructure/postgres"
	"safewatch-cloud/internal/telemetry/interfaces/httpingest"
	mqtttransport "safewatch-cloud/internal/telemetry/interfaces/mqtt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "safewatch-cloud")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()

	store, closeStore, err := buildStore(cfg, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer closeStore()

	heartbeats := health.NewTracker(health.Thresholds{
		OKWithin:   cfg.Health.OKWithin,
		WarnWithin: cfg.Health.WarnWithin,
	})

	bus := eventing.NewInMemoryBus()

	deriver, err := alertapp.NewDeriver(store, alerts.Thresholds{
		Vibration: cfg.Alerts.VibrationThreshold,
		Tilt:      cfg.Alerts.TiltThreshold,
	}, logger, alertapp.WithCooldown(cfg.Alerts.Cooldown))
	if err != nil {
		logger.Fatal("deriver init failed", zap.Error(err))
	}
	consumer, err := alertinterfaces.NewRecordIngestedConsumer(deriver)
	if err != nil {
		logger.Fatal("alerts consumer init failed", zap.Error(err))
	}
	eventing.Subscribe(bus, consumer.Consume)

	normalizer, err := application.NewNormalizer(store, heartbeats, bus, logger)
	if err != nil {
		logger.Fatal("normalizer init failed", zap.Error(err))
	}

	engine, err := query.NewEngine(store, logger,
		query.WithTimeout(cfg.Query.Timeout),
		query.WithDefaultRange(cfg.Query.DefaultRange))
	if err != nil {
		logger.Fatal("query engine init failed", zap.Error(err))
	}

	mux := http.NewServeMux()

	ingestHandler, err := httpingest.NewHandler(normalizer, logger)
	if err != nil {
		logger.Fatal("ingest handler init failed", zap.Error(err))
	}
	mux.Handle("/ingest/", ingestHandler)

	chartHandler, err := apihttp.NewChartHandler(engine, logger)
	if err != nil {
		logger.Fatal("chart handler init failed", zap.Error(err))
	}
	mux.Handle("/api/v1/chart", chartHandler)

	explorerHandler, err := apihttp.NewExplorerHandler(engine, logger)
	if err != nil {
		logger.Fatal("explorer handler init failed", zap.Error(err))
	}
	mux.Handle("/api/v1/explorer", explorerHandler)

	healthHandler, err := apihttp.NewHealthHandler(heartbeats, deriver)
	if err != nil {
		logger.Fatal("health handler init failed", zap.Error(err))
	}
	mux.Handle("/api/v1/health", healthHandler)

	latestHandler, err := apihttp.NewLatestHandler(engine, logger)
	if err != nil {
		logger.Fatal("latest handler init failed", zap.Error(err))
	}
	mux.Handle("/api/v1/latest", latestHandler)

	csvExport, err := apihttp.NewExportExplorerCSVHandler(engine, logger)
	if err != nil {
		logger.Fatal("csv export handler init failed", zap.Error(err))
	}
	mux.Handle("/api/v1/exports/explorer.csv", csvExport)

	xlsxExport, err := apihttp.NewExportExplorerXLSXHandler(engine, logger)
	if err != nil {
		logger.Fatal("xlsx export handler init failed", zap.Error(err))
	}
	mux.Handle("/api/v1/exports/explorer.xlsx", xlsxExport)

	pdfExport, err := apihttp.NewExportEventsPDFHandler(engine, logger)
	if err != nil {
		logger.Fatal("pdf export handler init failed", zap.Error(err))
	}
	mux.Handle("/api/v1/exports/events.pdf", pdfExport)

	var mqttClient *mqtttransport.Client
	if cfg.MQTT.Broker != "" {
		mqttClient, err = mqtttransport.NewClient(cfg.MQTT, normalizer, logger)
		if err != nil {
			logger.Fatal("mqtt connect failed", zap.Error(err))
		}
		defer mqttClient.Disconnect()
		if err := mqttClient.SubscribeTelemetry(); err != nil {
			logger.Fatal("mqtt subscribe failed", zap.Error(err))
		}
		commandHandler, err := commandshttp.NewHandler(mqttClient, logger)
		if err != nil {
			logger.Fatal("command handler init failed", zap.Error(err))
		}
		mux.Handle("/api/v1/commands", commandHandler)
		logger.Info("mqtt transport enabled", zap.String("broker", cfg.MQTT.Broker))
	} else {
		logger.Info("mqtt transport disabled, REST ingestion only")
	}

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: loggingMiddleware(mux, logger),
	}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
}

func buildStore(cfg config.Config, logger *zap.Logger) (telemetry.Store, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Info("using in-memory store")
		return memorystore.NewStore(), func() {}, nil
	case config.StorePostgres:
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("using postgres store")
		return postgresstore.NewStore(db, postgresstore.WithTimeout(cfg.DBTimeout)), func() { _ = db.Close() }, nil
	default:
		return nil, nil, errors.New("unknown store: " + cfg.Store)
	}
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
