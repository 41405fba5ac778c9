package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/campus-carbon/carbon-portal/internal/cloud"
	"github.com/campus-carbon/carbon-portal/internal/config"
	"github.com/campus-carbon/carbon-portal/internal/database"
	httpHandlers "github.com/campus-carbon/carbon-portal/internal/http"
	"github.com/campus-carbon/carbon-portal/internal/logging"
	"github.com/campus-carbon/carbon-portal/internal/realtime"
	"github.com/campus-carbon/carbon-portal/internal/service"
	"github.com/campus-carbon/carbon-portal/internal/telemetry"
)

func main() {
	collectOnce := flag.Bool("collect", false, "run one collection and exit")
	flag.Parse()

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	logging.Setup(config.LogLevel(), config.LogFormat())

	db, err := database.Connect(config.DBDriver(), config.DBDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := service.Options{
		Telemetry:   telemetry.NewClient(config.TelemetryAPIURL(), config.TelemetryAPIKey(), config.TelemetryTimeout()),
		Development: config.IsDevelopment(),
		Location:    config.Location(),
		RetryDelay:  config.CollectorRetryDelay(),
		MaxRetries:  config.CollectorMaxRetries(),
		Intervals: realtime.Intervals{
			Heartbeat:  config.RealtimeHeartbeat(),
			Energy:     config.RealtimeEnergyInterval(),
			Solar:      config.RealtimeSolarInterval(),
			Greenhouse: config.RealtimeGreenhouseInterval(),
		},
	}

	var archive *cloud.ReportArchive
	if config.UseCloudServices() {
		archive, err = cloud.NewReportArchive(ctx, config.AWSRegion(), config.S3Bucket())
		if err != nil {
			log.Fatal().Err(err).Msg("s3 client init failed")
		}
		opts.Archive = archive
		if arn := config.SNSTopicArn(); arn != "" {
			notifier, err := cloud.NewAlertNotifier(ctx, config.AWSRegion(), arn)
			if err != nil {
				log.Fatal().Err(err).Msg("sns client init failed")
			}
			opts.Notifier = notifier
		}
		log.Info().Str("bucket", config.S3Bucket()).Msg("cloud services enabled")
	}

	svcs := service.New(db, opts)

	if *collectOnce {
		res, err := svcs.Collector.Collect(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("collection failed")
		}
		log.Info().Str("source", res.Source).Int("buildings", res.DataCount).Msg("collection done")
		return
	}

	app := httpHandlers.NewApp()
	hopts := httpHandlers.Options{
		CollectorSecret: config.CollectorSecret(),
		AdminToken:      config.AdminToken(),
		BaseContext:     ctx,
	}
	if archive != nil {
		hopts.Reports = archive
	}
	httpHandlers.Register(app, svcs, hopts)

	if config.CollectorAutostart() {
		if err := svcs.Supervisor.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("collector scheduler start failed")
		}
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		svcs.Realtime.Close()
		svcs.Supervisor.Stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
	}()

	log.Info().
		Str("addr", config.APIAddr()).
		Str("env", config.AppEnv()).
		Bool("collector_autostart", config.CollectorAutostart()).
		Msg("api listening")
	if err := app.Listen(config.APIAddr()); err != nil {
		log.Fatal().Err(err).Msg("server exit")
	}
}
