// Command ply computes expressions over data files, locally or against a
// ply backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"

	"github.com/razeghi71/ply/config"
	"github.com/razeghi71/ply/loader"
	plylog "github.com/razeghi71/ply/util/log"
)

// globalFlags are shared by every command and override the config file.
type globalFlags struct {
	configFile string
	logLevel   string
	timezone   string
	locale     string
	data       []string
}

func (g *globalFlags) register(app *kingpin.Application) {
	app.Flag("config.file", "YAML configuration file.").StringVar(&g.configFile)
	app.Flag("log.level", "Log level: debug, info, warn or error.").StringVar(&g.logLevel)
	app.Flag("timezone", "IANA timezone time actions run in.").StringVar(&g.timezone)
	app.Flag("locale", "BCP 47 locale used to order strings.").StringVar(&g.locale)
	app.Flag("data", "Dataset to load, as name=path or path. Repeatable.").Short('d').StringsVar(&g.data)
}

// load builds the effective configuration and the logger.
func (g *globalFlags) load() (config.Config, log.Logger, error) {
	cfg := config.Default()
	if g.configFile != "" {
		var err error
		if cfg, err = config.Load(g.configFile); err != nil {
			return cfg, nil, err
		}
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.timezone != "" {
		cfg.Timezone = g.timezone
	}
	if g.locale != "" {
		cfg.Locale = g.locale
	}
	for _, src := range g.data {
		name, path, err := loader.ParseSource(src)
		if err != nil {
			return cfg, nil, err
		}
		if cfg.Datasets == nil {
			cfg.Datasets = map[string]string{}
		}
		cfg.Datasets[name] = path
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}

	logger, err := plylog.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

func main() {
	app := kingpin.New("ply", "Compute expressions over datasets.")
	app.HelpFlag.Short('h')

	var g globalFlags
	g.register(app)
	addQueryCommand(app, &g)
	addServeCommand(app, &g)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
