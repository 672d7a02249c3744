package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	config "github.com/NordCoder/Herald/internal/config/notifier"
	"github.com/NordCoder/Herald/internal/domain/aggregation"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/domain/task"
	"github.com/NordCoder/Herald/internal/obs"
	"github.com/NordCoder/Herald/internal/obs/retry"
	kafkaRepo "github.com/NordCoder/Herald/internal/repository/kafka"
	pg "github.com/NordCoder/Herald/internal/repository/postgres"
	"github.com/NordCoder/Herald/internal/services/aggregator"
	emailsender "github.com/NordCoder/Herald/internal/services/email-sender"
	"github.com/NordCoder/Herald/internal/services/fanout"
	"github.com/NordCoder/Herald/internal/services/sweeper"
	"github.com/NordCoder/Herald/internal/services/trigger"
	"github.com/NordCoder/Herald/internal/tasks"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const topicPartitions = 3

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Without HERALD_CONFIG the notifier runs on defaults and env overrides.
	cfg, err := config.Load(os.Getenv("HERALD_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}

	l, err := initLogger(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	l.Info("starting notifier",
		zap.String("env", cfg.App.Env),
		zap.String("ver", cfg.App.Version),
		zap.Strings("kafka_in", cfg.In.Brokers),
		zap.Bool("smtp", cfg.SMTP.EmailConfigured()),
	)

	otelShutdown, err := initOTel(ctx, cfg)
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := pg.NewDB(ctx, cfg.DB, l)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// repositories
	events := pg.NewEventRepo(db)
	notifs := pg.NewNotificationRepo(db)
	deliveries := pg.NewDeliveryRepo(db)
	settings := pg.NewSettingRepo(db)
	folders := pg.NewFolderRepo(db)
	taskRepo := pg.NewTaskRepo(db)
	tx := pg.NewTransactor(db, l)

	sched := tasks.NewScheduler(taskRepo, l)
	policy := aggregation.NewTable(aggregation.DefaultCore(), nil)
	clock := notification.SystemClock{}

	// kafka
	prod := kafkaRepo.BootstrapProducer(ctx, cfg.Out.Brokers, cfg.Out.Topic, topicPartitions, l)
	defer func() { _ = prod.Close() }()
	sub := kafkaRepo.BootstrapConsumer(ctx, &kafkaRepo.ConsumerConfig{
		Brokers:    cfg.In.Brokers,
		GroupID:    cfg.In.GroupID,
		Topic:      cfg.In.Topic,
		Partitions: topicPartitions,
	}, l)
	defer func() { _ = sub.Close() }()

	mailer := emailsender.New(cfg.SMTP).WithLogger(l)
	if !mailer.Configured() {
		l.Warn("smtp not configured; email deliveries stay pending")
	}

	// usecases
	aggUC := aggregator.NewUC(events, notifs, tx, sched, policy, clock, aggregator.Config{
		FanoutDelay:  cfg.Pipeline.FanoutDelay,
		FanoutBucket: cfg.Pipeline.FanoutBucket,
	}, l)
	fanUC := fanout.NewUC(
		notifs, events, deliveries,
		fanout.NewRecipientResolver(folders),
		fanout.NewSettingsResolver(settings),
		kafkaRepo.NewRealtimePusher(prod),
		sched, clock,
		fanout.Config{EmailDelay: cfg.Pipeline.EmailDelay, EmailBucket: cfg.Pipeline.EmailBucket},
		l,
	)
	emailUC := emailsender.NewUC(deliveries, mailer, sched, clock, emailsender.Config{
		PageSize:       cfg.Pipeline.EmailPageSize,
		NextDelay:      cfg.Pipeline.EmailNextDelay,
		ClaimTTL:       cfg.Pipeline.EmailClaimTTL,
		PlatformOrigin: cfg.Pipeline.PlatformOrigin,
	}, l)

	reg := tasks.NewRegistry(retry.DefaultTaskPolicy(l)).
		Register(task.HandlerAggregate, aggUC.HandleTask).
		Register(task.HandlerFanout, fanUC.HandleTask).
		Register(task.HandlerEmailBatch, emailUC.HandleTask)
	l.Info("task handlers registered", zap.Strings("handlers", reg.Names()))

	runner := tasks.NewRunner(l, taskRepo, reg.Dispatcher(), tasks.RunnerConfig{
		Workers:       cfg.Tasks.Workers,
		BatchSize:     cfg.Tasks.BatchSize,
		PollInterval:  cfg.Tasks.PollInterval,
		InProgressTTL: cfg.Tasks.InProgressTTL,
		MaxAttempts:   cfg.Tasks.MaxAttempts,
	})

	ctrl := &trigger.Controller{Log: l, Sub: sub, UC: trigger.NewUC(sched, clock, l)}

	var sweep *sweeper.Runner
	if cfg.Sweeper.Enable {
		sweepUC := sweeper.NewUC(events, policy, deliveries, mailer, sched, clock, sweeper.Config{
			StaleAfter: cfg.Sweeper.StaleAfter,
			KeyLimit:   cfg.Sweeper.KeyLimit,
			MaxPages:   cfg.Sweeper.MaxPages,
		}, l)
		sweep, err = sweeper.NewRunner(sweepUC, cfg.Sweeper.Spec, l)
		if err != nil {
			l.Fatal("sweeper init", zap.Error(err))
		}
	}

	// servers
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Ping(hctx)
	}, l)

	grpcServer, hs, grpcLn, err := buildGRPCServer(cfg.Server.GRPCAddr)
	if err != nil {
		l.Fatal("build grpc", zap.Error(err))
	}

	// run
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	errCh := make(chan error, 3)
	var wg sync.WaitGroup

	runner.Start(runCtx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctrl.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	if sweep != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sweep.Run(runCtx); err != nil {
				errCh <- err
			}
		}()
	}
	go func() { errCh <- serveGRPC(grpcServer, grpcLn, l) }()

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	l.Info("notifier started")

	select {
	case <-ctx.Done():
		l.Info("shutdown signal")
	case err = <-errCh:
		if err != nil {
			l.Error("component failed", zap.Error(err))
		}
	}

	// graceful shutdown
	hs.Shutdown()
	cancelRun()

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		runner.Wait()
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shCtx.Done():
		l.Warn("graceful timeout; abandoning in-flight work")
	}

	_ = ms.Shutdown(shCtx)
	grpcServer.GracefulStop()
	l.Info("bye")
}
