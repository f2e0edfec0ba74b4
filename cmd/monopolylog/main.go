package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"monopolylog/internal/aggregate"
	"monopolylog/internal/config"
	"monopolylog/internal/format"
	"monopolylog/internal/gamelog"
	"monopolylog/internal/hub"
	"monopolylog/internal/monitor"
	"monopolylog/internal/server"
	"monopolylog/internal/store"
	"monopolylog/internal/view"
	"monopolylog/internal/watcher"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the configuration shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
}

func (a *app) store() *store.Store {
	return store.New(a.cfg.LogsDir,
		store.WithExportDir(a.cfg.ExportDir),
		store.WithMaxUpload(a.cfg.MaxUploadBytes()),
	)
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "monopolylog",
		Short:         "Browse, aggregate and serve AI Monopoly game logs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.LoadEnv(); err != nil {
				return err
			}
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default: $HOME/.monopolylog.yaml)")
	flags.String("logs-dir", "", "directory holding the game logs (default: logs)")
	a.v.BindPFlag("logs_dir", flags.Lookup("logs-dir")) //nolint:errcheck

	root.AddCommand(newListCmd(a))
	root.AddCommand(newTurnsCmd(a))
	root.AddCommand(newViewCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newUploadCmd(a))
	root.AddCommand(newServeCmd(a))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "monopolylog: %v\n", err)
		os.Exit(1)
	}
}

func newListCmd(a *app) *cobra.Command {
	var (
		pattern    string
		limit      int
		formatFlag string
		noHeader   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List game logs, most recently modified first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.store().List(store.ListOptions{Pattern: pattern, Limit: limit})
			if err != nil {
				return err
			}

			errs := cmd.ErrOrStderr()
			for _, warn := range result.Warnings {
				fmt.Fprintf(errs, "warning: %v\n", warn)
			}

			return format.WriteLogList(cmd.OutOrStdout(), result.Files, !noHeader, formatFlag)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&pattern, "pattern", "", "only list logs whose name matches the glob")
	flags.IntVar(&limit, "limit", 0, "limit number of logs returned (0 means no limit)")
	flags.StringVar(&formatFlag, "format", "table", "output format: table, plain, json, or jsonl")
	flags.BoolVar(&noHeader, "no-header", false, "omit header row for table and plain output")

	return cmd
}

func newTurnsCmd(a *app) *cobra.Command {
	var (
		formatFlag  string
		noHeader    bool
		byTimestamp bool
	)

	cmd := &cobra.Command{
		Use:   "turns <log-name-or-path>",
		Short: "Summarize a game log turn by turn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveLogPath(args[0], a.cfg.LogsDir)
			if err != nil {
				return err
			}
			entries, err := gamelog.ReadFile(path)
			if err != nil {
				return err
			}
			records, err := aggregate.Aggregate(entries, aggregate.Options{SortByTimestamp: byTimestamp})
			if err != nil {
				return err
			}
			return format.WriteTurns(cmd.OutOrStdout(), records, !noHeader, formatFlag)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&formatFlag, "format", "table", "output format: table, plain, json, or jsonl")
	flags.BoolVar(&noHeader, "no-header", false, "omit header row for table and plain output")
	flags.BoolVar(&byTimestamp, "sort-timestamp", false, "order entries by timestamp before aggregating")

	return cmd
}

func newViewCmd(a *app) *cobra.Command {
	var (
		formatFlag   string
		wrap         int
		maxTurns     int
		fromTurn     int
		toTurn       int
		byTimestamp  bool
		forceColor   bool
		forceNoColor bool
		noPager      bool
	)

	cmd := &cobra.Command{
		Use:   "view <log-name-or-path>",
		Short: "Render the turn timeline of a game log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if forceColor && forceNoColor {
				return errors.New("--color and --no-color cannot be used together")
			}
			path, err := resolveLogPath(args[0], a.cfg.LogsDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			outFile, _ := out.(*os.File)
			opts := view.Options{
				Path:            path,
				Format:          formatFlag,
				Wrap:            wrap,
				MaxTurns:        maxTurns,
				SortByTimestamp: byTimestamp,
				ForceColor:      forceColor,
				ForceNoColor:    forceNoColor,
				NoPager:         noPager,
				Out:             out,
				OutFile:         outFile,
			}
			// Turn 0 is a real turn, so unset bounds are nil rather than zero.
			if cmd.Flags().Changed("from") {
				opts.FromTurn = &fromTurn
			}
			if cmd.Flags().Changed("to") {
				opts.ToTurn = &toTurn
			}
			return view.Run(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&formatFlag, "format", "text", "output format: text, chat, or raw")
	flags.IntVar(&wrap, "wrap", 0, "wrap text at the given column width")
	flags.IntVar(&maxTurns, "max", 0, "show only the most recent N turns (0 means no limit)")
	flags.IntVar(&fromTurn, "from", 0, "first turn to show (default: no lower bound)")
	flags.IntVar(&toTurn, "to", 0, "last turn to show (default: no upper bound)")
	flags.BoolVar(&byTimestamp, "sort-timestamp", false, "order entries by timestamp before aggregating")
	flags.BoolVar(&forceColor, "color", false, "force-enable colors even when stdout is not a TTY")
	flags.BoolVar(&forceNoColor, "no-color", false, "disable colors regardless of terminal detection")
	flags.BoolVar(&noPager, "no-pager", false, "never pipe output through $PAGER")

	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "export <log-name>",
		Short: "Write the per-turn decision export of a stored log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.store().Export(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch strings.ToLower(formatFlag) {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			case "", "text":
				_, err := fmt.Fprintf(out, "exported %d turns to %s\n", res.TotalTurns, res.Path)
				return err
			default:
				return fmt.Errorf("unsupported format: %s", formatFlag)
			}
		},
	}

	cmd.Flags().StringVar(&formatFlag, "format", "text", "output format: text or json")
	return cmd
}

func newUploadCmd(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Copy a local JSON log into the logs directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close() //nolint:errcheck

			if name == "" {
				name = args[0]
			}
			res, err := a.store().Upload(name, f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.OriginalName != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s already exists, stored as %s\n", res.OriginalName, res.Filename)
			}
			_, err = fmt.Fprintln(out, res.Filename)
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "file name to store the log under (default: the source base name)")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API and live event feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg, a.store())
		},
	}

	flags := cmd.Flags()
	flags.String("addr", "", "listen address (default: :8080)")
	flags.Bool("watch", true, "publish log.updated events when log files change")
	a.v.BindPFlag("addr", flags.Lookup("addr"))   //nolint:errcheck
	a.v.BindPFlag("watch", flags.Lookup("watch")) //nolint:errcheck

	return cmd
}

func serve(ctx context.Context, cfg config.Config, st *store.Store) error {
	if err := os.MkdirAll(cfg.LogsDir, 0o755); err != nil {
		return fmt.Errorf("create logs directory: %w", err)
	}

	feed := hub.New()
	go feed.Run(ctx)

	mon := monitor.New(cfg.Services, cfg.PollInterval, nil, feed)
	go mon.Run(ctx)

	if cfg.Watch {
		w, err := watcher.New(cfg.LogsDir, feed)
		if err != nil {
			return err
		}
		go w.Run(ctx)
	}

	return server.New(st, feed, mon, cfg.Addr).Run(ctx)
}

// resolveLogPath accepts either a path to an existing file or the name of a
// log under logsDir.
func resolveLogPath(arg, logsDir string) (string, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return arg, nil
	}
	p, err := store.New(logsDir).Path(arg)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", store.ErrNotFound, arg)
	}
	return p, nil
}
