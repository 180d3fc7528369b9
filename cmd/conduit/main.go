package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/Conduit/internal/blueprint"
	"github.com/GriffinCanCode/Conduit/internal/infrastructure/config"
	"github.com/GriffinCanCode/Conduit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/Conduit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/Conduit/internal/pipeline"
	"github.com/GriffinCanCode/Conduit/internal/server"
	"github.com/GriffinCanCode/Conduit/internal/source"
	"github.com/GriffinCanCode/Conduit/internal/ws"
)

func main() {
	topologyPath := flag.String("topology", "topology.yaml", "Topology file (.json, .yaml, or .toml)")
	port := flag.String("port", "", "HTTP port (overrides PORT)")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dev {
		cfg.Logging.Development = true
	}

	var log *logging.Logger
	if cfg.Logging.Development {
		log = logging.NewDevelopment()
	} else {
		logCfg := logging.DefaultConfig()
		logCfg.Level = cfg.Logging.Level
		l, err := logging.New(logCfg)
		if err != nil {
			l = logging.NewDefault()
		}
		log = l
	}
	defer log.Sync()

	metrics := monitoring.NewMetrics()

	topo, err := blueprint.ParseFile(*topologyPath)
	if err != nil {
		log.Fatal("loading topology", zap.Error(err))
	}
	log.Info("topology loaded",
		zap.String("pipeline", topo.Pipeline.Name),
		zap.Int("buffers", len(topo.Buffers)),
		zap.Int("processors", len(topo.Processors)),
		zap.Int("sources", len(topo.Sources)),
	)

	pipe := pipeline.New(cfg, log, metrics)
	pipe.OnError(func(err error) {
		log.Error("pipeline failure surfaced", zap.Error(err))
	})
	buffers, err := blueprint.Build(pipe, topo)
	if err != nil {
		log.Fatal("assembling topology", zap.Error(err))
	}
	if err := pipe.Start(); err != nil {
		log.Fatal("starting pipeline", zap.Error(err))
	}

	sources := make([]*source.Source, 0, len(topo.Sources))
	for _, sd := range topo.Sources {
		src, err := source.New(pipe, buffers[sd.Buffer], source.Config{
			Name:         sd.Name,
			Kind:         sd.Kind,
			Rate:         sd.Rate,
			Burst:        sd.Burst,
			PayloadBytes: sd.PayloadBytes,
		}, log, metrics)
		if err != nil {
			log.Fatal("creating source", zap.String("source", sd.Name), zap.Error(err))
		}
		src.Start(context.Background())
		sources = append(sources, src)
	}

	stream := ws.NewHandler(pipe, log, metrics, time.Second)
	srv := server.New(cfg.Server, log, metrics, pipe, stream)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", zap.Error(err))
		}
	}

	for _, src := range sources {
		src.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := pipe.Shutdown(ctx); err != nil {
		log.Warn("pipeline shutdown", zap.Error(err))
	}
}
