package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgilbert-tools/clonepfs/internal/clone"
)

var version = "dev"

func main() {
	os.Exit(run())
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

func run() int {
	var (
		sourceFlag      string
		destFlag        string
		hidden          bool
		noXdev          bool
		noDst           bool
		extra           bool
		maxDepth        int
		reglen          int
		wait            int
		cacheCount      int
		statisticsCount int
		showVersion     bool
		exclude         []string
		exclFn          []string
		dereference     []string
		prune           []string
	)

	rootCmd := &cobra.Command{
		Use:           "clonepfs [flags]",
		Short:         "Clone a Linux pseudo filesystem into an ordinary directory tree",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "clonepfs %s\n", version)
				return nil
			}

			sourceDefaulted := sourceFlag == ""
			source := sourceFlag
			if sourceDefaulted {
				source = "/sys"
			}
			dest := destFlag
			if dest == "" {
				if !noDst && !sourceDefaulted {
					return errors.New("--destination is required when --source is given explicitly")
				}
				dest = "/tmp/sys"
			}

			logLevel := slog.LevelWarn
			verbosity, _ := cmd.Flags().GetCount("verbose")
			switch {
			case verbosity >= 2:
				logLevel = slog.LevelDebug
			case verbosity == 1:
				logLevel = slog.LevelInfo
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
			slog.SetDefault(logger)

			res := clone.Run(clone.Config{
				SourceRoot:  source,
				DestRoot:    dest,
				Hidden:      hidden,
				NoXdev:      noXdev,
				NoDst:       noDst,
				Extra:       extra,
				MaxDepth:    maxDepth,
				Reglen:      reglen,
				WaitMS:      wait,
				Exclude:     exclude,
				ExclFn:      exclFn,
				Dereference: dereference,
				Prune:       prune,
				CacheLevel:  cacheCount,
			})

			if statisticsCount > 0 {
				res.Stats.Fprint(os.Stdout, statisticsCount > 1)
			}

			if res.Err != nil {
				slog.Error("clone failed", "error", res.Err)
				return &exitError{code: 1}
			}
			if res.Stats.NumError > 0 {
				slog.Warn("clone completed with scan errors", "count", res.Stats.NumError)
			}
			return nil
		},
	}

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
	rootCmd.Flags().StringVar(&sourceFlag, "source", "", "input root directory (default /sys)")
	rootCmd.Flags().StringVar(&destFlag, "destination", "", "output root directory (default /tmp/sys, only when --source defaulted)")
	rootCmd.Flags().BoolVar(&hidden, "hidden", false, "do not skip names beginning with '.'")
	rootCmd.Flags().BoolVar(&noXdev, "no-xdev", false, "cross filesystem boundaries (default: stay within source fs)")
	rootCmd.Flags().BoolVar(&noDst, "no-dst", false, "scan only; produce statistics, write nothing")
	rootCmd.Flags().BoolVar(&extra, "extra", false, "extra consistency checks and post-unroll verification")
	rootCmd.Flags().IntVar(&maxDepth, "max-depth", 0, "limit descent (0 = unlimited)")
	rootCmd.Flags().IntVar(&reglen, "reglen", 256, "maximum bytes read per regular file")
	rootCmd.Flags().IntVar(&wait, "wait", 0, "poll timeout in ms for reads returning EAGAIN")
	rootCmd.Flags().CountVarP(&cacheCount, "cache", "", "enable two-pass clone; repeat to also cache regular-file contents eagerly")
	rootCmd.Flags().CountVarP(&statisticsCount, "statistics", "", "emit statistics; repeat for extra detail")
	rootCmd.Flags().CountP("verbose", "v", "increase log verbosity (repeatable)")
	rootCmd.Flags().StringArrayVar(&exclude, "exclude", nil, "glob pattern to exclude (repeatable)")
	rootCmd.Flags().StringArrayVar(&exclFn, "excl-fn", nil, "basename to exclude, no path separators (repeatable)")
	rootCmd.Flags().StringArrayVar(&dereference, "dereference", nil, "symlink path to convert into a deep copy (repeatable)")
	rootCmd.Flags().StringArrayVar(&prune, "prune", nil, "path to keep (repeatable); SOURCE keeps everything")

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}
