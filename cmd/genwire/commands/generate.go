package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/syssam/genwire"
	"github.com/syssam/genwire/client"
	"github.com/syssam/genwire/config"
	"github.com/syssam/genwire/generator"
)

// debounce is how long watch mode waits for changes to settle.
const debounce = 200 * time.Millisecond

// shutdownTimeout bounds the close message sent to the worker.
const shutdownTimeout = 5 * time.Second

// ErrGeneratorReported is returned when the worker reported errors. The
// errors themselves have been printed.
var ErrGeneratorReported = errors.New("genwire: generation reported errors")

var (
	configPath string
	watchMode  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate Go client code for a project",
	Long: `Generate Go client code for the project described by a genwire.yml file.

The schema and operation documents are sent to a worker process, and the
files it returns are written to the output directory. Files whose content
did not change are left untouched.

With --watch the command keeps running and regenerates whenever a schema,
an operation document or the project file changes.

Examples:
  genwire generate
  genwire generate -c api/genwire.yml --watch`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s := &session{
			cfg:    cfg,
			log:    newLogger(cmd.ErrOrStderr()),
			out:    cmd.OutOrStdout(),
			errOut: cmd.ErrOrStderr(),
		}
		return s.run(ctx, watchMode)
	},
}

func init() {
	generateCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultFile, "project file")
	generateCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "regenerate on changes")
	rootCmd.AddCommand(generateCmd)
}

// session drives one worker process.
type session struct {
	cfg    *config.Config
	log    *slog.Logger
	out    io.Writer
	errOut io.Writer
	proc   *client.Process
}

func (s *session) run(ctx context.Context, watch bool) error {
	name, args, err := workerCommand(s.cfg)
	if err != nil {
		return err
	}
	// The worker outlives ctx so that it can be shut down gracefully.
	proc, err := client.Start(context.WithoutCancel(ctx), name, args,
		client.WithLogger(s.log),
		client.WithStderr(s.errOut),
	)
	if err != nil {
		return err
	}
	s.proc = proc
	s.log.Debug("genwire: worker started", "command", name, "pid", proc.Pid())

	err = s.generate(ctx)
	if watch {
		if err != nil {
			s.report(err)
		}
		err = s.watch(ctx)
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if serr := proc.Shutdown(sctx); serr != nil {
		s.log.Debug("genwire: close message not sent", "error", serr)
	}
	if cerr := proc.Close(); cerr != nil {
		s.log.Warn("genwire: worker exited", "error", cerr)
	}
	return err
}

// workerCommand returns the worker executable and its arguments. Without a
// configured command the running executable serves as worker.
func workerCommand(cfg *config.Config) (string, []string, error) {
	if cfg.Worker.Command != "" {
		return cfg.Worker.Command, cfg.Worker.Args, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("locate genwire executable: %w", err)
	}
	args := cfg.Worker.Args
	if len(args) == 0 {
		args = []string{"worker"}
		if verbose {
			args = append(args, "--verbose")
		}
	}
	return exe, args, nil
}

// generate runs one generation and writes its result.
func (s *session) generate(ctx context.Context) error {
	req, err := s.cfg.Request()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Worker.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.proc.Generate(ctx, req)
	if err != nil {
		return err
	}
	if resp.HasErrors() {
		for _, e := range resp.Errors {
			fmt.Fprintln(s.errOut, e.Error())
		}
		return fmt.Errorf("%w: %d errors", ErrGeneratorReported, len(resp.Errors))
	}

	w := generator.NewWriter(s.cfg.OutputDir())
	if err := w.Write(ctx, resp.Documents); err != nil {
		return err
	}
	m := w.Metrics()
	fmt.Fprintf(s.out, "genwire: %d written, %d unchanged (%s)\n",
		m.FilesWritten, m.FilesUnchanged, time.Since(start).Round(time.Millisecond))
	return nil
}

func (s *session) report(err error) {
	if !errors.Is(err, ErrGeneratorReported) {
		fmt.Fprintf(s.errOut, "Error: %v\n", err)
	}
}

// watch regenerates whenever a relevant file changes, until ctx ends.
func (s *session) watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Close()
	s.addWatches(w)
	fmt.Fprintln(s.out, "genwire: watching for changes")

	return s.loop(ctx, w.Events, w.Errors, func(ctx context.Context) error {
		defer s.addWatches(w)
		return s.regenerate(ctx)
	})
}

// loop calls regen once relevant events have settled for the debounce
// period. It returns when ctx ends, the watcher closes or regen reports
// that the worker is gone.
func (s *session) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, regen func(context.Context) error) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !s.relevant(ev) {
				continue
			}
			s.log.Debug("genwire: change", "file", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			s.log.Warn("genwire: watch error", "error", err)
		case <-fire:
			fire = nil
			if err := regen(ctx); err != nil {
				// The worker is gone; nothing left to drive.
				if genwire.IsTransportClosed(err) || genwire.IsDisposed(err) {
					return err
				}
				s.report(err)
			}
		}
	}
}

// regenerate reloads the project file and generates again.
func (s *session) regenerate(ctx context.Context) error {
	cfg, err := config.Load(s.cfg.Path())
	if err != nil {
		return err
	}
	s.cfg = cfg
	return s.generate(ctx)
}

func (s *session) addWatches(w *fsnotify.Watcher) {
	for _, dir := range s.cfg.WatchDirs() {
		if err := w.Add(dir); err != nil {
			s.log.Debug("genwire: not watching", "dir", dir, "error", err)
		}
	}
}

func (s *session) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if filepath.Clean(ev.Name) == s.cfg.Path() {
		return true
	}
	switch strings.ToLower(filepath.Ext(ev.Name)) {
	case generator.SchemaExt, ".graphql", ".gql":
		return true
	}
	return false
}
