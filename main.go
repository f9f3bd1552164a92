package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/synodriver/aria2link/aria2"
	"github.com/synodriver/aria2link/jobs"
	"github.com/synodriver/aria2link/settings"
)

var version = "dev"

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "host",
		Usage: "aria2 RPC host (default: stored setting or localhost)",
	},
	cli.IntFlag{
		Name:  "port",
		Usage: "aria2 RPC port (default: stored setting or 6800)",
	},
	cli.BoolFlag{
		Name:  "secure",
		Usage: "use wss:// and https://",
	},
	cli.StringFlag{
		Name:   "secret",
		Usage:  "aria2 --rpc-secret",
		EnvVar: "ARIA2_SECRET",
	},
	cli.StringFlag{
		Name:  "path",
		Usage: "RPC endpoint path (default: /jsonrpc)",
	},
	cli.DurationFlag{
		Name:  "timeout",
		Usage: "per-call timeout, negative disables it (default: 30s)",
	},
	cli.StringFlag{
		Name:  "config",
		Usage: "settings file (default: <user config dir>/aria2link/config.toml)",
	},
	cli.BoolFlag{
		Name:  "debug",
		Usage: "log debug output to stderr",
	},
}

func newApp(stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "aria2link"
	app.HelpName = "aria2link"
	app.Usage = "control an aria2 daemon over JSON-RPC"
	app.UsageText = "aria2link [global options] <command> [arguments...]"
	app.Version = version
	app.Writer = stdout
	app.ErrWriter = stderr
	app.Flags = globalFlags
	app.Commands = commands
	return app
}

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "aria2link:", err)
		os.Exit(1)
	}
}

// env is what every command needs: the effective settings and a client
// for them.
type env struct {
	log   *slog.Logger
	store *settings.Store
	cfg   aria2.Config
	cache *aria2.Cache
	out   io.Writer
}

func newLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelWarn
	if c.GlobalBool("debug") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level}))
}

func openStore(c *cli.Context, log *slog.Logger) (*settings.Store, error) {
	path := c.GlobalString("config")
	if path == "" {
		var err error
		if path, err = settings.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return settings.NewStore(path, log), nil
}

// applyFlags overrides stored settings with the global flags that were set.
func applyFlags(c *cli.Context, cfg aria2.Config) aria2.Config {
	if c.GlobalIsSet("host") {
		cfg.Host = c.GlobalString("host")
	}
	if c.GlobalIsSet("port") {
		cfg.Port = c.GlobalInt("port")
	}
	if c.GlobalIsSet("secure") {
		cfg.Secure = c.GlobalBool("secure")
	}
	if c.GlobalIsSet("secret") {
		cfg.Secret = c.GlobalString("secret")
	}
	if c.GlobalIsSet("path") {
		cfg.Path = c.GlobalString("path")
	}
	if c.GlobalIsSet("timeout") {
		cfg.Timeout = c.GlobalDuration("timeout")
	}
	return cfg
}

func newEnv(c *cli.Context) (*env, error) {
	log := newLogger(c)
	store, err := openStore(c, log)
	if err != nil {
		return nil, err
	}
	cfg, err := store.Load()
	if err != nil {
		return nil, err
	}
	cfg = applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &env{
		log:   log,
		store: store,
		cfg:   cfg,
		cache: aria2.NewCache(aria2.WithLogger(log)),
		out:   c.App.Writer,
	}, nil
}

func (e *env) client() (*aria2.Client, error) {
	return e.cache.Get(e.cfg)
}

func (e *env) connector() jobs.Connector {
	return func(context.Context) (jobs.RPC, error) {
		client, err := e.client()
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func (e *env) manager(opts ...jobs.Option) *jobs.Manager {
	opts = append([]jobs.Option{jobs.WithLogger(e.log)}, opts...)
	return jobs.NewManager(e.connector(), opts...)
}

func (e *env) Close() error {
	return e.cache.Close()
}

// withEnv adapts a command body to a cli.ActionFunc. The context is
// cancelled on SIGINT or SIGTERM.
func withEnv(fn func(ctx context.Context, c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := newEnv(c)
		if err != nil {
			return err
		}
		defer e.Close()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return fn(ctx, c, e)
	}
}

func requireArgs(c *cli.Context, what string) ([]string, error) {
	args := []string(c.Args())
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: missing %s", c.Command.Name, what)
	}
	return args, nil
}

const defaultBadgeInterval = 2 * time.Second
