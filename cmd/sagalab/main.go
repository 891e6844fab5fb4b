package main

import (
	"context"
	"database/sql"
	"time"

	config "github.com/davicafu/sagalab/internal/config"
	dbMemory "github.com/davicafu/sagalab/internal/infra/db/memory"
	dbRedis "github.com/davicafu/sagalab/internal/infra/db/redis"
	dbSqlite "github.com/davicafu/sagalab/internal/infra/db/sqlite"
	infraEvents "github.com/davicafu/sagalab/internal/infra/events"
	esSqlite "github.com/davicafu/sagalab/internal/infra/eventstore/sqlite"
	orderApp "github.com/davicafu/sagalab/internal/order/application"
	orderDomain "github.com/davicafu/sagalab/internal/order/domain"
	orderEvents "github.com/davicafu/sagalab/internal/order/infra/inbound/events"
	orderHttp "github.com/davicafu/sagalab/internal/order/infra/inbound/http"
	orderServices "github.com/davicafu/sagalab/internal/order/infra/outbound/services"
	sagaApp "github.com/davicafu/sagalab/internal/saga/application"
	sagaDomain "github.com/davicafu/sagalab/internal/saga/domain"
	sagaHttp "github.com/davicafu/sagalab/internal/saga/infra/inbound/http"
	sagaAnalytics "github.com/davicafu/sagalab/internal/saga/infra/outbound/analytics/clickhouse"
	sagaLease "github.com/davicafu/sagalab/internal/saga/infra/outbound/lease"
	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
	sharedBus "github.com/davicafu/sagalab/internal/shared/infra/platform/bus"
	sharedCache "github.com/davicafu/sagalab/internal/shared/infra/platform/cache"
	"github.com/davicafu/sagalab/internal/shared/infra/relayer"

	"github.com/davicafu/sagalab/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	// _ "github.com/mattn/go-sqlite3" // requires gcc
	_ "modernc.org/sqlite"
)

// ---------------- Main ----------------
func main() {
	logger.Init()          // inicializa zap
	log := logger.Logger() // obtiene logger estructurado
	defer log.Sync()       // flush buffers al salir

	ctx := context.Background()
	cfg := config.LoadConfig()

	// ---------------- DB ----------------
	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		log.Fatal("failed to open SQLite", zap.Error(err))
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatal("failed to ping SQLite", zap.Error(err))
	}
	if err := esSqlite.InitSchema(db); err != nil {
		log.Fatal("failed to initialize event store schema", zap.Error(err))
	}
	if err := dbSqlite.InitSchema(db); err != nil {
		log.Fatal("failed to initialize outbox schema", zap.Error(err))
	}

	eventStore := esSqlite.NewEventStoreSQLite(db)
	aggregateRepo := sharedDomain.NewRepository(eventStore)
	outboxRepo := dbSqlite.NewOutboxRepoSQLite(db)

	// ---------------- Redis ----------------
	// Inbox, lease y caché van en Redis si está disponible; si no, en memoria.
	var inbox sharedDomain.Inbox
	var lease sagaDomain.InstanceLease
	var cacheInstance sharedCache.Cache

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("⚠️ Redis no disponible, inbox, lease y caché en memoria:", zap.Error(err))
		inbox = dbMemory.NewInboxMemory()
		lease = sagaLease.NewInMemoryLease()
		cacheInstance = sharedCache.NewInMemoryCache(cfg.CacheTTL, 3*cfg.CacheTTL)
	} else {
		inbox = dbRedis.NewInboxRedis(rdb, cfg.InboxTTL)
		lease = sagaLease.NewRedisLease(rdb, cfg.ServiceName)
		cacheInstance = sharedCache.NewRedisCache(rdb, cfg.CacheTTL)
		log.Info("✅ Redis conectado, inbox, lease y caché distribuidos")
	}

	// --------------- Servicios --------------
	orderService := orderApp.NewOrderService(aggregateRepo, cacheInstance, outboxRepo, log)
	inventoryService := orderServices.NewInventoryServiceMemory(1000, log)
	paymentService := orderServices.NewPaymentServiceMemory(100000, log)

	// ---------------- Events ---------------
	eventRegistry := make(map[string]sharedEvents.EventMetadata)
	for k, v := range orderDomain.NewEventRegistry() {
		eventRegistry[k] = v
	}
	for k, v := range sagaDomain.NewEventRegistry() {
		eventRegistry[k] = v
	}

	orderConsumer := orderEvents.NewOrderConsumer(inbox, log)

	var eventPublisher sharedBus.EventPublisher

	if cfg.UseKafka {
		log.Info("🚀 Usando Kafka como bus de eventos")

		// El writer es genérico: el topic de cada mensaje lo decide el
		// publisher a partir del tipo de evento.
		writer := infraEvents.NewEventWriter(cfg.KafkaBrokers)
		defer writer.Close()

		eventPublisher = infraEvents.NewKafkaPublisher(writer, cfg.ServiceName, log)

		// Cada tipo de evento viaja en su propio topic: un lector por topic
		// para que la proyección no pierda confirmaciones ni cancelaciones.
		for _, rc := range infraEvents.ReaderConfigsForRegistry(cfg.KafkaBrokers, cfg.ServiceName, orderDomain.NewEventRegistry()) {
			reader := kafka.NewReader(rc)
			defer reader.Close()

			adapter := infraEvents.NewConsumerAdapter(reader, orderConsumer.HandleEvent, inbox, log)
			adapter.Start(ctx)
		}
	} else {
		log.Info("⚡️Usando bus de eventos en memoria (canales de Go)")

		bus := infraEvents.NewInMemoryEventBus(log)
		eventPublisher = bus
		orderConsumer.Register(bus)
	}

	// ------------ Outbox Worker ------------
	// Se podría ejecutar externamente
	outboxWorker := relayer.NewOutboxWorker(outboxRepo, eventPublisher, eventRegistry, cfg.OutboxPeriod, cfg.OutboxLimit, log)
	go outboxWorker.Start(ctx)

	// ------------ Orquestador --------------
	opts := []sagaApp.Option{
		sagaApp.WithOutbox(outboxRepo),
		sagaApp.WithLease(lease, cfg.SagaLeaseTTL),
	}
	if cfg.ArchiveToCH {
		archiver, err := sagaAnalytics.NewSagaHistoryRepo(cfg.ClickHouseAddr, cfg.ClickHouseDB)
		if err != nil {
			log.Warn("⚠️ ClickHouse no disponible, historial de sagas sin archivar", zap.Error(err))
		} else {
			opts = append(opts, sagaApp.WithArchiver(archiver))
		}
	}

	orchestrator := sagaApp.NewOrchestrator(sagaApp.NewState(), log, opts...)
	if err := orchestrator.RegisterSaga(orderApp.BuildOrderCreationSaga(orderService, inventoryService, paymentService)); err != nil {
		log.Fatal("failed to register saga", zap.Error(err))
	}

	// Limpieza periódica de instancias terminadas.
	go func() {
		ticker := time.NewTicker(cfg.CleanupPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := orchestrator.CleanupInstances(ctx, cfg.SagaRetention)
				if removed > 0 {
					log.Info("🧹 Instancias de saga archivadas", zap.Int("count", removed))
				}
			}
		}
	}()

	// ---------------- HTTP ----------------
	sagaHandler := sagaHttp.NewSagaHandler(orchestrator)
	orderHandler := orderHttp.NewOrderHandler(orderService)
	router := gin.Default()
	sagaHttp.RegisterSagaRoutes(router, sagaHandler)
	orderHttp.RegisterOrderRoutes(router, orderHandler)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	log.Info("🚀 Server running",
		zap.String("url", "http://localhost:"+cfg.HTTPPort),
	)
	if err := router.Run(":" + cfg.HTTPPort); err != nil {
		log.Fatal("failed to start server: %v", zap.Error(err))
	}
}
