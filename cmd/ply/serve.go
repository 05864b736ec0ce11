package main

import (
	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/razeghi71/ply/loader"
	"github.com/razeghi71/ply/server"
)

type serveCommand struct {
	global *globalFlags
	listen string
}

func addServeCommand(app *kingpin.Application, g *globalFlags) {
	cmd := &serveCommand{global: g}
	c := app.Command("serve", "Serve the loaded datasets to remote dispatchers over HTTP.")
	c.Flag("listen", "Address to listen on.").StringVar(&cmd.listen)
	c.Action(cmd.run)
}

func (cmd *serveCommand) run(_ *kingpin.ParseContext) error {
	cfg, logger, err := cmd.global.load()
	if err != nil {
		return err
	}
	if cmd.listen != "" {
		cfg.ListenAddress = cmd.listen
	}

	datasets, err := loader.LoadAll(cfg.Datasets)
	if err != nil {
		return errors.Wrap(err, "load error")
	}
	env, err := cfg.Environment()
	if err != nil {
		return err
	}
	level.Info(logger).Log("msg", "datasets loaded", "count", datasets.Len())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ctx, cancel := signalContext()
	defer cancel()
	return server.New(logger, datasets, env, reg).Run(ctx, cfg.ListenAddress)
}
