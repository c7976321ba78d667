package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/syssam/genwire"
	"github.com/syssam/genwire/generator"
	"github.com/syssam/genwire/worker"
)

var (
	workerNoCache bool
	workerSlow    time.Duration
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Serve the generator protocol over stdin/stdout",
	Long: `Serve generator requests read from stdin and write responses to stdout.

The worker stops when the client sends a close message or closes stdin.
Logs are written to stderr. Results are kept in memory for the life of the
worker, so an unchanged project is answered without generating again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger(os.Stderr)

		opts := []generator.Option{generator.WithLogger(log)}
		if !workerNoCache {
			opts = append(opts, generator.WithCache(genwire.NewMemoryCache(), 0))
		}
		gen, err := generator.New(opts...)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Debug("genwire: worker started", "pid", os.Getpid())
		srv := worker.NewServer(os.Stdin, os.Stdout, gen,
			worker.WithLogger(log),
			worker.WithSlowThreshold(workerSlow),
		)
		if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerNoCache, "no-cache", false, "do not remember generated results")
	workerCmd.Flags().DurationVar(&workerSlow, "slow", worker.DefaultSlowThreshold, "log requests slower than this")
	rootCmd.AddCommand(workerCmd)
}
