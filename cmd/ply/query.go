package main

import (
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/razeghi71/ply/config"
	"github.com/razeghi71/ply/dispatch"
	"github.com/razeghi71/ply/executor"
	"github.com/razeghi71/ply/loader"
	"github.com/razeghi71/ply/locator"
	"github.com/razeghi71/ply/parser"
	"github.com/razeghi71/ply/plan"
	"github.com/razeghi71/ply/requester"
	"github.com/razeghi71/ply/value"
)

type queryCommand struct {
	global *globalFlags

	expression     string
	format         string
	remote         string
	remoteDNS      string
	remoteDatasets []string
}

func addQueryCommand(app *kingpin.Application, g *globalFlags) {
	cmd := &queryCommand{global: g}
	c := app.Command("query", "Compute an expression and print the result.").Default()
	c.Flag("output", "Output format: table or json.").Short('o').Default("table").EnumVar(&cmd.format, "table", "json")
	c.Flag("remote", "Backend address (host:port) remote datasets are computed on.").StringVar(&cmd.remote)
	c.Flag("remote.dns", "Backend name resolved periodically, e.g. dnssrv+_http._tcp.ply.").StringVar(&cmd.remoteDNS)
	c.Flag("remote.dataset", "Dataset that lives on the backend. Repeatable.").StringsVar(&cmd.remoteDatasets)
	c.Arg("expression", "Expression to compute, e.g. \"$sales.sum($revenue)\".").Required().StringVar(&cmd.expression)
	c.Action(cmd.run)
}

func (cmd *queryCommand) run(_ *kingpin.ParseContext) error {
	cfg, logger, err := cmd.global.load()
	if err != nil {
		return err
	}
	if cmd.remote != "" {
		cfg.Remote.Address = cmd.remote
	}
	if cmd.remoteDNS != "" {
		cfg.Remote.DNS = cmd.remoteDNS
	}
	if len(cmd.remoteDatasets) > 0 {
		cfg.Remote.Datasets = cmd.remoteDatasets
	}
	if err := cfg.Remote.Validate(); err != nil {
		return err
	}

	ex, err := parser.Parse(cmd.expression)
	if err != nil {
		return errors.Wrap(err, "parse error")
	}
	datasets, err := loader.LoadAll(cfg.Datasets)
	if err != nil {
		return errors.Wrap(err, "load error")
	}
	env, err := cfg.Environment()
	if err != nil {
		return err
	}

	d, stop, err := newDispatcher(cfg, datasets, logger)
	if err != nil {
		return err
	}
	defer stop()

	ctx, cancel := signalContext()
	defer cancel()
	v, err := executor.New(d, env).Execute(ctx, ex)
	if err != nil {
		return err
	}
	return printValue(os.Stdout, v, cmd.format)
}

// newDispatcher computes locally unless a backend is configured. With a
// backend, the listed remote datasets are routed to it; with none listed
// the whole expression is.
func newDispatcher(cfg config.Config, datasets value.Datum, logger log.Logger) (dispatch.Dispatcher, func(), error) {
	native := &dispatch.Native{Datasets: datasets}
	if !cfg.Remote.Enabled() {
		return native, func() {}, nil
	}

	loc, stop, err := newLocator(cfg.Remote, logger)
	if err != nil {
		return nil, nil, err
	}
	remote := dispatch.NewRemote(loc, requester.NewHTTP(cfg.Remote.Path, cfg.Remote.Timeout), cfg.Backoff, logger, nil)
	if len(cfg.Remote.Datasets) == 0 {
		if datasets.Len() > 0 {
			level.Warn(logger).Log("msg", "no remote datasets listed, local datasets are ignored", "datasets", datasets.Len())
		}
		return remote, stop, nil
	}
	return &dispatch.Router{Native: native, Remote: remote, RemoteDatasets: cfg.Remote.Datasets}, stop, nil
}

func newLocator(cfg config.RemoteConfig, logger log.Logger) (locator.Locator, func(), error) {
	if cfg.DNS != "" {
		d := locator.NewDNS(logger, cfg.DNS, cfg.RefreshInterval, nil)
		return d, d.Stop, nil
	}
	loc, err := locator.ParseLocation(cfg.Address)
	if err != nil {
		return nil, nil, err
	}
	return locator.Static{Location: loc}, func() {}, nil
}

func printValue(w io.Writer, v value.Value, format string) error {
	if format == "json" {
		out, err := plan.MarshalValue(v)
		if err != nil {
			return err
		}
		_, err = w.Write(append(out, '\n'))
		return err
	}
	if v.Type == value.TypeDataset {
		return printTable(w, v.Dataset)
	}
	_, err := io.WriteString(w, formatCell(v)+"\n")
	return err
}
