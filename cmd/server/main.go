package main // Entry point package

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/concert-ticket-booking/internal/config"
	"github.com/iliyamo/concert-ticket-booking/internal/database"
	"github.com/iliyamo/concert-ticket-booking/internal/handler"
	"github.com/iliyamo/concert-ticket-booking/internal/jobs"
	"github.com/iliyamo/concert-ticket-booking/internal/lockstore"
	"github.com/iliyamo/concert-ticket-booking/internal/notify"
	"github.com/iliyamo/concert-ticket-booking/internal/queue"
	"github.com/iliyamo/concert-ticket-booking/internal/repository"
	"github.com/iliyamo/concert-ticket-booking/internal/router"
	"github.com/iliyamo/concert-ticket-booking/internal/service"
	"github.com/iliyamo/concert-ticket-booking/internal/telemetry"
)

func main() {
	// A .env file is optional; real deployments set the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("env: %v", err)
	}
	cfg := config.Load()
	resCfg := engineConfig(config.LoadReservationConfig())
	brokerCfg := config.LoadBrokerConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, "concert-ticket-booking")
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Printf("telemetry: shutdown: %v", err)
		}
	}()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	defer db.Close()
	if cfg.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("mysql: migrate: %v", err)
		}
	}

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	g, gctx := errgroup.WithContext(ctx)

	// Without a broker, promotions run on in-process timers and events
	// only reach the log.
	var (
		runner jobs.Runner
		sinks  notify.Multi
	)
	if brokerCfg.URL != "" {
		// Separate connections, so an event backlog never delays a
		// promotion being scheduled under a seat lock.
		eventsPub := queue.NewPublisher(brokerCfg.URL)
		defer eventsPub.Close()
		jobsPub := queue.NewPublisher(brokerCfg.URL)
		defer jobsPub.Close()

		amqpSink := notify.NewAMQPSink(eventsPub, brokerCfg.NotifyBuf)
		sinks = append(sinks, amqpSink)
		amqpRunner := jobs.NewAMQPRunner(jobsPub, brokerCfg.URL, brokerCfg.QueuePrefix)
		runner = amqpRunner

		g.Go(func() error { return amqpSink.Run(gctx) })
		g.Go(func() error { return amqpRunner.Start(gctx) })
		g.Go(func() error {
			return queue.StartEventLogConsumer(gctx, brokerCfg.URL, &queue.EventLog{Dir: cfg.LogDir})
		})
		log.Printf("rabbitmq: jobs on %s, events on %s", amqpRunner.WorkQueue(), queue.EventsExchange)
	} else {
		local := jobs.NewLocalRunner()
		defer local.Stop()
		runner = local
		log.Printf("rabbitmq: no broker configured; queue promotions are not durable")
	}
	if brokerCfg.URL == "" || cfg.Env == "dev" {
		sinks = append(sinks, notify.LogSink{})
	}

	store := lockstore.NewRedisStore(rdb)
	ledger := repository.NewLedger(db)
	res := service.NewReservationManager(ledger, store, sinks, nil, resCfg)
	queueMgr := service.NewQueueManager(res, runner)
	checkout := service.NewCheckout(res)
	sweeper := service.NewSweeper(res, resCfg.SweepInterval)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			log.Printf("http: %s %s status=%d latency=%s", v.Method, v.URIPath, v.Status, v.Latency)
			return nil
		},
	}))

	h := router.Handlers{
		Reservation:  handler.NewReservationHandler(res),
		Queue:        handler.NewQueueHandler(queueMgr),
		Orders:       handler.NewOrderHandler(checkout),
		Ops:          handler.NewOpsHandler(ledger.SeatRepo, sweeper, res.Availability()),
		Availability: res.Availability(),
		Ready: map[string]handler.Pinger{
			"mysql": db,
			"redis": handler.PingerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		},
	}
	router.RegisterRoutes(e, h)
	router.RegisterCustomer(e, h, cfg.JWTSecret, config.LoadRateLimitConfig(), rdb)
	router.RegisterOps(e, h, cfg.JWTSecret)

	addr := ":" + cfg.Port
	g.Go(func() error {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(sctx)
	})
	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: %v", err)
	}
	log.Printf("server: stopped")
}

// engineConfig maps the environment's timings onto the engine's config.
func engineConfig(c config.ReservationConfig) service.Config {
	return service.Config{
		ReservationDuration: c.ReservationDuration,
		LockTTL:             c.LockTTL,
		SweepInterval:       c.SweepInterval,
		QueueDelayUnit:      c.QueueDelayUnit,
		QueueMaxAttempts:    c.QueueMaxAttempts,
		QueueBackoff: jobs.Backoff{
			Initial: c.QueueBackoffInitial,
			Factor:  service.DefaultConfig().QueueBackoff.Factor,
			Max:     c.QueueBackoffMax,
		},
		AvailabilityTTL: c.AvailabilityTTL,
	}
}
