package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sensorsim/internal/config"
	"github.com/sensorsim/internal/emitter"
	"github.com/sensorsim/internal/inject"
	"github.com/sensorsim/internal/kafkaclient"
	"github.com/sensorsim/internal/logging"
	"github.com/sensorsim/internal/metrics"
	"github.com/sensorsim/internal/mqttclient"
	"github.com/sensorsim/internal/publisher"
	"github.com/sensorsim/internal/sensors"
	"github.com/sensorsim/internal/statusapi"
	"github.com/sensorsim/internal/websocket"
	"go.uber.org/zap"
)

const (
	exitOK         = 0
	exitConnection = 1
	exitConfig     = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("c", "config.yaml", "path to configuration file (falls back to environment if missing)")
	printConfig := flag.Bool("print-config", false, "print the effective configuration and exit")
	overrideClass := flag.String("class", "", "publish one override reading for this class (tmp, hum, sun, co2) and exit")
	overrideValue := flag.Float64("value", 0, "override value used with -class")
	injectFile := flag.String("inject", "", "read <class>,<value> override lines from this file, '-' for stdin")
	injectSerial := flag.String("inject-serial", "", "read <class>,<value> override lines from this serial port")
	baud := flag.Int("baud", 9600, "serial baud rate for -inject-serial")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitConfig
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return exitConfig
	}
	defer logger.Sync()

	if *printConfig {
		out, err := cfg.YAML()
		if err != nil {
			logger.Error("Failed to render configuration", zap.Error(err))
			return exitConfig
		}
		os.Stdout.Write(out)
		return exitOK
	}

	logger.Info("Configuration loaded",
		zap.String("source", cfg.Source),
		zap.String("transport", cfg.Broker.Transport),
		zap.String("broker", cfg.Broker.Address()),
		zap.String("topic", cfg.Broker.Topic),
		zap.String("cycles", cfg.CyclesToRun),
		zap.Float64("interval_seconds", cfg.CycleIntervalSeconds))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter := publisher.New(newTransport(cfg, logger), publisher.Options{
		Topic:  cfg.Broker.Topic,
		Retry:  cfg.RetryPolicy(),
		Logger: logger,
	})
	gen := sensors.NewGenerator(cfg.Registry())

	if *overrideClass != "" {
		return publishOnce(ctx, adapter, gen, *overrideClass, *overrideValue, logger)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts := []emitter.Option{
		emitter.WithLogger(logger),
		emitter.WithObserver(metrics.New(reg)),
	}

	auxCtx, cancelAux := context.WithCancel(ctx)
	defer cancelAux()

	var hub *websocket.Hub
	if cfg.StatusAddr != "" {
		hub = websocket.NewHub(logger)
		opts = append(opts, emitter.WithObserver(hub))
		go hub.Run(auxCtx)
	}

	sched := emitter.New(gen, adapter, cfg.SchedulerConfig(), opts...)

	if cfg.StatusAddr != "" {
		router := statusapi.NewRouter(sched, hub, reg, logger)
		go func() {
			if err := statusapi.Serve(auxCtx, cfg.StatusAddr, router, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Status API stopped", zap.Error(err))
			}
		}()
	}

	src, err := openInjectionSource(*injectFile, *injectSerial, *baud)
	if err != nil {
		logger.Error("Failed to open injection source", zap.Error(err))
		return exitConfig
	}
	if src != nil {
		defer src.Close()
		go func() {
			n, err := inject.Run(auxCtx, src, sched, logger)
			if err != nil {
				logger.Warn("Injection source failed", zap.Error(err))
			}
			logger.Info("Injection source exhausted", zap.Int("injected", n))
		}()
	}

	report, err := sched.Run(ctx)
	if err != nil {
		logger.Error("Emission aborted", zap.Error(err))
		return exitConnection
	}

	logger.Info("Emission finished",
		zap.Int("cycles", len(report.Cycles)),
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Bool("interrupted", report.Interrupted))
	return exitOK
}

func newTransport(cfg *config.Config, logger *zap.Logger) publisher.Transport {
	b := cfg.Broker
	if b.Transport == config.TransportKafka {
		return kafkaclient.New(kafkaclient.Options{
			Brokers:        []string{b.Address()},
			QoS:            byte(b.QoS),
			ConnectTimeout: b.ConnectTimeout(),
			WriteTimeout:   b.PublishTimeout(),
			Logger:         logger,
		})
	}
	return mqttclient.New(mqttclient.Options{
		BrokerURL:      mqttclient.BrokerURL(b.Host, b.Port),
		QoS:            byte(b.QoS),
		ConnectTimeout: b.ConnectTimeout(),
		AckTimeout:     b.PublishTimeout(),
		Logger:         logger,
	})
}

func publishOnce(ctx context.Context, adapter *publisher.Adapter, gen *sensors.Generator, className string, value float64, logger *zap.Logger) int {
	class, err := sensors.ParseClass(className)
	if err != nil {
		logger.Error("Invalid override class", zap.Error(err))
		return exitConfig
	}
	if err := inject.CheckValue(value); err != nil {
		logger.Error("Invalid override value", zap.Error(err))
		return exitConfig
	}

	if err := adapter.Connect(ctx); err != nil {
		logger.Error("Broker connection failed", zap.Error(err))
		return exitConnection
	}
	defer adapter.Close()

	r := gen.Override(class, value)
	if err := adapter.Publish(ctx, r); err != nil {
		logger.Error("Override publish failed", zap.Error(err))
		return exitConnection
	}
	logger.Info("Override published", zap.String("sensor_id", r.SensorID), zap.Float64("value", r.Value))
	return exitOK
}

func openInjectionSource(file, serialPort string, baud int) (io.ReadCloser, error) {
	switch {
	case serialPort != "":
		return inject.OpenSerial(serialPort, baud)
	case file == "-":
		return io.NopCloser(os.Stdin), nil
	case file != "":
		return os.Open(file)
	}
	return nil, nil
}
