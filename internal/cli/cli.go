// Package cli implements the kvcache command line tool: each subcommand
// runs one driver operation against a registry built from the config file.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/kvcache"
	"github.com/unkn0wn-root/kvcache/config"
	kvzap "github.com/unkn0wn-root/kvcache/log/zap"
)

type app struct {
	configPath string
	driverName string
	logLevel   string

	log *zap.Logger
	reg *kvcache.Registry
}

// Run executes the command line in args. Results go to out, logs and usage
// to errOut. Drivers opened for the command are closed before Run returns.
func Run(ctx context.Context, args []string, out, errOut io.Writer) error {
	root, a := newRoot(out, errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.close(ctx))
}

func newRoot(out, errOut io.Writer) (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:           "kvcache",
		Short:         "Inspect and edit cache drivers from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "completion":
				return nil
			}
			return a.open(cmd.Context(), errOut)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (default ./kvcache.yaml)")
	pf.StringVarP(&a.driverName, "driver", "d", "", "driver name (default: the configured default)")
	pf.StringVar(&a.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		a.getCmd(),
		a.putCmd(),
		a.removeCmd(),
		a.hasCmd(),
		a.counterCmd("incr", "Increment a counter", 1),
		a.counterCmd("decr", "Decrement a counter", -1),
		a.flushCmd(),
		a.pruneCmd(),
		a.driversCmd(),
	)
	return root, a
}

func (a *app) open(ctx context.Context, errOut io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.log, err = newLogger(cfg.Logging, errOut)
	if err != nil {
		return err
	}
	a.reg, err = config.Build(ctx, cfg, kvzap.New(a.log), nil)
	return err
}

func (a *app) close(ctx context.Context) error {
	if a.reg == nil {
		return nil
	}
	err := a.reg.Close(ctx)
	a.reg = nil
	_ = a.log.Sync()
	return err
}

func (a *app) driver() (kvcache.Driver, error) {
	return a.reg.Get(a.driverName)
}

func newLogger(c config.LoggingConfig, w io.Writer) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if c.Level != "" {
		var err error
		if level, err = zapcore.ParseLevel(c.Level); err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch c.Format {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("logging: unknown format %q", c.Format)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level)), nil
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a value as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			var v any
			ok, err := d.Get(cmd.Context(), args[0], &v)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s: not found", args[0])
			}
			return printJSON(cmd.OutOrStdout(), v)
		},
	}
}

func (a *app) putCmd() *cobra.Command {
	var ttl time.Duration
	var never bool
	cmd := &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Store a value; valid JSON is stored as JSON, anything else as a string",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			exp := kvcache.Default
			switch {
			case never:
				exp = kvcache.Never
			case ttl != 0:
				exp = kvcache.In(ttl)
			}
			return d.Put(cmd.Context(), args[0], parseValue(args[1]), exp)
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "expire after this long (default: the driver TTL)")
	cmd.Flags().BoolVar(&never, "never", false, "never expire")
	return cmd
}

func (a *app) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <key>...",
		Aliases: []string{"remove"},
		Short:   "Remove keys",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			for _, k := range args {
				if err := d.Remove(cmd.Context(), k); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (a *app) hasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "has <key>",
		Short: "Print true when the key holds a live value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			ok, err := d.Has(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ok)
			return err
		},
	}
}

func (a *app) counterCmd(use, short string, sign int64) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <key> [count]",
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			count := int64(1)
			if len(args) == 2 {
				if count, err = strconv.ParseInt(args[1], 10, 64); err != nil {
					return fmt.Errorf("count: %w", err)
				}
			}
			var n int64
			if sign > 0 {
				n, err = d.Increment(cmd.Context(), args[0], count)
			} else {
				n, err = d.Decrement(cmd.Context(), args[0], count)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
}

func (a *app) flushCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Remove every entry in the driver's namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all {
				return a.reg.FlushAll(cmd.Context())
			}
			d, err := a.driver()
			if err != nil {
				return err
			}
			return d.Flush(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "flush every configured driver")
	return cmd
}

func (a *app) pruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove expired entries and print how many were removed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			n, err := d.Prune(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
}

func (a *app) driversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drivers",
		Short: "List configured drivers; the default is marked with *",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range a.reg.Names() {
				mark := " "
				if name == a.reg.Fallback() {
					mark = "*"
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mark, name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func parseValue(s string) any {
	var v any
	if json.Valid([]byte(s)) && json.Unmarshal([]byte(s), &v) == nil {
		return v
	}
	return s
}

func printJSON(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
