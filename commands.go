package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/synodriver/aria2link/aria2"
	"github.com/synodriver/aria2link/jobs"
	"github.com/synodriver/aria2link/nativehost"
)

var commands = []cli.Command{
	{
		Name:    "jobs",
		Aliases: []string{"ls"},
		Usage:   "list active and waiting downloads",
		Action:  withEnv(listJobs),
	},
	{
		Name:      "add",
		Aliases:   []string{"a"},
		Usage:     "queue downloads; bare info hashes become magnet links",
		ArgsUsage: "<uri|hash>...",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "out, o", Usage: "output file name (single uri only)"},
			cli.StringFlag{Name: "dir, d", Usage: "download directory (single uri only)"},
			cli.StringSliceFlag{Name: "header, H", Usage: "extra request header (single uri only)"},
		},
		Action: withEnv(addJobs),
	},
	{
		Name:      "pause",
		Usage:     "pause downloads",
		ArgsUsage: "<gid>...",
		Action:    withEnv(bulk((*jobs.Manager).PauseJobs)),
	},
	{
		Name:      "start",
		Aliases:   []string{"resume"},
		Usage:     "resume paused downloads",
		ArgsUsage: "<gid>...",
		Action:    withEnv(bulk((*jobs.Manager).StartJobs)),
	},
	{
		Name:      "remove",
		Aliases:   []string{"rm"},
		Usage:     "remove downloads",
		ArgsUsage: "<gid>...",
		Action:    withEnv(bulk((*jobs.Manager).RemoveJobs)),
	},
	{
		Name:   "count",
		Usage:  "print the number of active downloads",
		Action: withEnv(countJobs),
	},
	{
		Name:      "status",
		Usage:     "show the status of individual downloads",
		ArgsUsage: "<gid>...",
		Action:    withEnv(showStatus),
	},
	{
		Name:  "stat",
		Usage: "show global transfer statistics",
		Action: withEnv(func(ctx context.Context, _ *cli.Context, e *env) error {
			client, err := e.client()
			if err != nil {
				return err
			}
			stat, err := client.GetGlobalStat(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(e.out, renderGlobalStat(stat))
			return nil
		}),
	},
	{
		Name:  "version",
		Usage: "print the daemon version and session id",
		Action: withEnv(func(ctx context.Context, _ *cli.Context, e *env) error {
			client, err := e.client()
			if err != nil {
				return err
			}
			v, err := client.GetVersion(ctx)
			if err != nil {
				return err
			}
			session, err := client.GetSessionInfo(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "aria2 %s (session %s)\n", v.Version, session)
			fmt.Fprintf(e.out, "features: %s\n", strings.Join(v.EnabledFeatures, ", "))
			return nil
		}),
	},
	{
		Name:  "methods",
		Usage: "list the RPC methods the daemon exposes",
		Flags: []cli.Flag{
			cli.BoolFlag{Name: "notifications, n", Usage: "list notifications instead"},
		},
		Action: withEnv(listMethods),
	},
	{
		Name:  "watch",
		Usage: "print download notifications as they arrive",
		Flags: []cli.Flag{
			cli.BoolFlag{Name: "trace", Usage: "also print raw frames sent and received"},
		},
		Action: withEnv(watch),
	},
	{
		Name:  "badge",
		Usage: "print the active download count whenever it is polled",
		Flags: []cli.Flag{
			cli.DurationFlag{Name: "interval", Value: defaultBadgeInterval, Usage: "poll interval"},
		},
		Action: withEnv(func(ctx context.Context, c *cli.Context, e *env) error {
			err := e.manager().WatchBadge(ctx, c.Duration("interval"), jobs.BadgeFunc(func(n int) {
				fmt.Fprintln(e.out, badgeText(n))
			}))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}),
	},
	{
		Name:  "nativehost",
		Usage: "serve the browser extension over native messaging on stdin/stdout",
		Action: withEnv(func(ctx context.Context, _ *cli.Context, e *env) error {
			out := nativehost.NewWriter(os.Stdout)
			mgr := e.manager(jobs.WithNotifier(out))
			err := nativehost.NewHost(mgr, os.Stdin, out, e.log).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}),
	},
	{
		Name:  "config",
		Usage: "manage stored connection settings",
		Subcommands: []cli.Command{
			{
				Name:   "show",
				Usage:  "print the effective settings",
				Action: configShow,
			},
			{
				Name:      "set",
				Usage:     "store the settings given as global flags",
				UsageText: "aria2link --host nas --port 6800 --secret s3cr3t config set",
				Action:    configSet,
			},
			{
				Name:   "clear",
				Usage:  "forget stored settings and the secret",
				Action: configClear,
			},
		},
	},
}

func listJobs(ctx context.Context, _ *cli.Context, e *env) error {
	list, err := e.manager().GetJobs(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(e.out, "no active or waiting downloads")
		return nil
	}
	fmt.Fprintln(e.out, renderJobs(list))
	return nil
}

func addJobs(ctx context.Context, c *cli.Context, e *env) error {
	uris, err := requireArgs(c, "uri")
	if err != nil {
		return err
	}
	mgr := e.manager(jobs.WithNotifier(jobs.NotifierFunc(func(_ context.Context, msg string) error {
		_, err := fmt.Fprintln(c.App.ErrWriter, msg)
		return err
	})))

	single := c.IsSet("out") || c.IsSet("dir") || c.IsSet("header")
	if single {
		if len(uris) != 1 {
			return errors.New("add: --out, --dir and --header take exactly one uri")
		}
		link := jobs.AugmentLink(strings.TrimSpace(uris[0]))
		gid, err := mgr.AddUri(ctx, link, c.String("out"), &aria2.DownloadOptions{
			Out:    c.String("out"),
			Dir:    c.String("dir"),
			Header: c.StringSlice("header"),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, gid)
		return nil
	}

	gids, err := mgr.AddUris(ctx, uris...)
	if err != nil {
		return err
	}
	for _, gid := range gids {
		fmt.Fprintln(e.out, gid)
	}
	return nil
}

func bulk(op func(*jobs.Manager, context.Context, ...string)) func(context.Context, *cli.Context, *env) error {
	return func(ctx context.Context, c *cli.Context, e *env) error {
		gids, err := requireArgs(c, "gid")
		if err != nil {
			return err
		}
		op(e.manager(), ctx, gids...)
		return nil
	}
}

func countJobs(ctx context.Context, _ *cli.Context, e *env) error {
	n, err := e.manager().GetNumJobs(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, n)
	return nil
}

// showStatus asks for every gid concurrently and reports them in argument
// order. One unknown gid does not hide the others.
func showStatus(ctx context.Context, c *cli.Context, e *env) error {
	gids, err := requireArgs(c, "gid")
	if err != nil {
		return err
	}
	client, err := e.client()
	if err != nil {
		return err
	}
	calls := make([]aria2.Call, len(gids))
	for i, gid := range gids {
		calls[i] = aria2.NewCall("tellStatus", gid)
	}
	// RPC faults are per-gid outcomes. Any other failure cancels the
	// remaining waits.
	g, gctx := errgroup.WithContext(ctx)
	pending := client.Batch(gctx, calls...)

	list := make([]aria2.Job, len(pending))
	failed := make([]error, len(pending))
	for i, p := range pending {
		g.Go(func() error {
			var err error
			select {
			case <-p.Done():
				var raw json.RawMessage
				if raw, err = p.Wait(); err == nil {
					err = json.Unmarshal(raw, &list[i])
				}
			case <-gctx.Done():
				err = gctx.Err()
			}
			if err == nil {
				return nil
			}
			list[i] = aria2.Job{Gid: gids[i], ErrorMessage: err.Error()}
			var rpcErr *aria2.RPCError
			if errors.As(err, &rpcErr) {
				failed[i] = fmt.Errorf("%s: %w", gids[i], err)
				return nil
			}
			return fmt.Errorf("%s: %w", gids[i], err)
		})
	}
	err = g.Wait()

	fmt.Fprintln(e.out, renderJobs(list))
	if err != nil {
		return err
	}
	return errors.Join(failed...)
}

func listMethods(ctx context.Context, c *cli.Context, e *env) error {
	client, err := e.client()
	if err != nil {
		return err
	}
	list := client.ListMethods
	if c.Bool("notifications") {
		list = client.ListNotifications
	}
	names, err := list(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(e.out, name)
	}
	return nil
}

// watch keeps a WebSocket open and prints notifications until interrupted or
// the daemon goes away.
func watch(ctx context.Context, c *cli.Context, e *env) error {
	client, err := e.client()
	if err != nil {
		return err
	}
	closed := make(chan struct{})
	client.On(aria2.EventClose, func(aria2.Event) { close(closed) })
	report := func(label string) aria2.Handler {
		return func(ev aria2.Event) {
			fmt.Fprintf(e.out, "%-9s %s\n", label, strings.Join(ev.GIDs(), " "))
		}
	}
	client.OnDownloadStart(report("start"))
	client.OnDownloadPause(report("pause"))
	client.OnDownloadStop(report("stop"))
	client.OnDownloadComplete(report("complete"))
	client.OnDownloadError(report("error"))
	client.OnBtDownloadComplete(report("bt-done"))
	if c.Bool("trace") {
		client.On(aria2.EventOutput, func(ev aria2.Event) { fmt.Fprintf(e.out, "-> %s\n", ev.Data) })
		client.On(aria2.EventInput, func(ev aria2.Event) { fmt.Fprintf(e.out, "<- %s\n", ev.Data) })
	}

	if err := client.Open(ctx); err != nil {
		return err
	}
	e.log.Info("watching", "url", e.cfg.WebsocketURL())
	select {
	case <-ctx.Done():
		return nil
	case <-closed:
		return errors.New("watch: connection closed by daemon")
	}
}

func configShow(c *cli.Context) error {
	log := newLogger(c)
	store, err := openStore(c, log)
	if err != nil {
		return err
	}
	cfg, err := store.Load()
	if err != nil {
		return err
	}
	cfg = applyFlags(c, cfg)
	fmt.Fprintln(c.App.Writer, renderConfig(store.Path(), cfg))
	return nil
}

func configSet(c *cli.Context) error {
	log := newLogger(c)
	store, err := openStore(c, log)
	if err != nil {
		return err
	}
	cfg, err := store.Load()
	if err != nil && !errors.Is(err, aria2.ErrInvalidConfig) {
		return err
	}
	cfg = applyFlags(c, cfg)
	if err := store.Save(cfg); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "saved %s\n", store.Path())
	return nil
}

func configClear(c *cli.Context) error {
	store, err := openStore(c, newLogger(c))
	if err != nil {
		return err
	}
	return store.Clear()
}

func badgeText(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
