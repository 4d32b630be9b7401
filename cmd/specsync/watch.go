package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"specsync/internal/watch"
)

var (
	flagLogFile  string
	flagDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-sync whenever the specification file changes",
	Long: `Run an initial sync, then watch the specification file and re-run the
sync after every (debounced) change. Stops on SIGINT/SIGTERM.

With --log-file, sync logs go to a size-rotated file instead of stderr.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()

		logOut := io.Writer(os.Stderr)
		if flagLogFile != "" {
			logOut = &lumberjack.Logger{
				Filename:   flagLogFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
			}
		}
		logger := log.New(logOut, "[watch] ", log.LstdFlags)

		w, err := watch.New(cfg.SpecPath, flagDebounce)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := w.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer w.Stop()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

		logger.Printf("watching %s", cfg.SpecPath)
		if code := runSync(false); code != 0 {
			logger.Printf("initial sync exited with code %d", code)
		}

		for {
			select {
			case <-w.Changes():
				logger.Printf("spec changed, re-syncing")
				if code := runSync(false); code != 0 {
					logger.Printf("sync exited with code %d", code)
				}
			case err := <-w.Errors():
				logger.Printf("watch error: %v", err)
			case <-stop:
				logger.Printf("shutting down")
				return
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&flagLogFile, "log-file", "", "write logs to a rotating file")
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", watch.DefaultDebounce, "quiet period after a change before re-syncing")
}
