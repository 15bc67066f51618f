package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/technosupport/frl-toolbox/internal/describe"
	"github.com/technosupport/frl-toolbox/internal/license"
	"github.com/technosupport/frl-toolbox/internal/platform"
	"github.com/technosupport/frl-toolbox/internal/platform/credstore"
	"github.com/technosupport/frl-toolbox/internal/platform/paths"
)

// VERSION is set at build time.
var VERSION = "0.0.0-dev"

var rootCmd = &cobra.Command{
	Use:   "license-decoder [path]",
	Short: "Decode the Adobe license files installed on this computer",
	Long: `Decodes all the installed license files on the current machine.
If you specify a directory, it decodes all the license files or
preconditioning files found in that directory. A single .json, .ccp or
.operatingconfig file can be given as well.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          rootCmdRun,
}

type rootFlags struct {
	verbose   int
	output    describe.Format
	watch     bool
	utc       bool
	redisAddr string
	redisPass string
}

var rootArgs = newRootFlags()

func newRootFlags() rootFlags {
	return rootFlags{output: describe.FormatText}
}

func init() {
	rootCmd.Flags().CountVarP(&rootArgs.verbose, "verbose", "v",
		"Output additional data about each package (e.g., census codes). "+
			"Specify it twice (-vv) to look up locally cached activations.")
	rootCmd.Flags().VarP(&rootArgs.output, "output", "o", "Output format: text, json or table.")
	rootCmd.Flags().BoolVar(&rootArgs.watch, "watch", false,
		"Keep running and describe the path again whenever it changes.")
	rootCmd.PersistentFlags().BoolVar(&rootArgs.utc, "utc", false, "Print dates in UTC instead of local time.")
	rootCmd.Flags().StringVar(&rootArgs.redisAddr, "redis-addr", os.Getenv("FRL_REDIS_ADDR"),
		"Redis address of the credential store used with -vv.")
	rootCmd.Flags().StringVar(&rootArgs.redisPass, "redis-password", "", "Redis password of the credential store.")
	rootCmd.Version = VERSION
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		os.Exit(1)
	}
}

func rootCmdRun(cmd *cobra.Command, args []string) error {
	path, isDefault, err := targetPath(args)
	if err != nil {
		return err
	}
	if _, err := license.NewFileInfo(path); err != nil {
		if !errors.Is(err, license.ErrNotFound) {
			return err
		}
		if isDefault {
			return errors.New("There are no licenses installed on this computer")
		}
		return fmt.Errorf("No such directory: %s", path)
	}

	var store credstore.Store
	if rootArgs.redisAddr != "" && rootArgs.verbose > 1 {
		rs := credstore.NewRedisStore(rootArgs.redisAddr, rootArgs.redisPass)
		defer rs.Close()
		store = rs
	}
	decoder := newDecoder(store)
	opts := describe.Options{Format: rootArgs.output, Verbosity: rootArgs.verbose}
	if rootArgs.verbose > 1 {
		opts.CachedExpiry = decoder.CachedExpiry
	}

	if rootArgs.watch {
		return watch(cmd, path, decoder, opts)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	report, err := decoder.DecodePath(ctx, path)
	if err != nil {
		return err
	}
	return describe.Render(ctx, cmd.OutOrStdout(), report, opts)
}

// targetPath returns the path to decode and whether it is the platform default.
func targetPath(args []string) (string, bool, error) {
	if len(args) == 1 {
		return args[0], false, nil
	}
	dir, ok := paths.DefaultOperatingConfigDir()
	if !ok {
		return "", true, errors.New("no default license directory on this platform, specify a path")
	}
	return dir, true, nil
}

func newDecoder(store credstore.Store) *license.Decoder {
	cfg := license.DecoderConfig{
		Platform:  platform.New(store),
		CacheSize: license.DefaultCacheSize,
	}
	if rootArgs.utc {
		cfg.Location = time.UTC
	}
	return license.NewDecoder(cfg)
}

// watch re-renders the report on every change until interrupted, and logs
// expiry alerts for the decoded licenses.
func watch(cmd *cobra.Command, path string, decoder *license.Decoder, opts describe.Options) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	render := func(st license.State) {
		if st.Err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "Error:", st.Err)
			return
		}
		fmt.Fprintf(out, "--- %s (%s)\n", st.Report.Source, st.LastReload.Format(time.RFC3339))
		if err := describe.Render(ctx, out, st.Report, opts); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		}
	}

	m := license.NewManager(ctx, path, decoder, render)
	m.PollInterval = 10 * time.Second
	m.StartWatcher(ctx)

	alerts := license.NewScheduler(m, func(a license.Alert) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s license %s (%s) expires %s (%d days)\n",
			a.AppID, license.ShortenFilename(a.Filename), a.Type, a.ExpiryDate, a.DaysToExpiry)
	})
	alerts.Start(ctx)

	<-ctx.Done()
	return nil
}
