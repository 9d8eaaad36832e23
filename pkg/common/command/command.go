package command

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/opencore-vm/ocpatch/pkg/logger"
)

var GlobalCommandOption = struct {
	Debug bool
	Quiet bool
}{}

type ICommandOption interface {
	Complete(ctx context.Context, args []string, argsLenAtDash int) error
	Validate(ctx context.Context) error
	Run(ctx context.Context, args []string) error
}

var (
	cleanupMu sync.Mutex
	cleanups  []func(context.Context)
)

// OnInterrupt registers a best-effort cleanup run before the process exits
// on SIGINT/SIGTERM. Used to release volumes mounted during the run.
func OnInterrupt(fn func(context.Context)) {
	cleanupMu.Lock()
	defer cleanupMu.Unlock()
	cleanups = append(cleanups, fn)
}

func runCleanups() {
	cleanupMu.Lock()
	fns := make([]func(context.Context), len(cleanups))
	copy(fns, cleanups)
	cleanupMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i](ctx)
	}
}

func MakeRunE(opt ICommandOption) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		switch {
		case GlobalCommandOption.Debug:
			logger.SetLevel(slog.LevelDebug)
		case GlobalCommandOption.Quiet:
			logger.SetLevel(slog.LevelWarn)
		default:
			logger.SetLevel(slog.LevelInfo)
		}

		const (
			logLevelDebug = "debug"
			logLevelInfo  = "info"
		)

		currentLogLevelString := logLevelInfo

		rotateLogLevel := func() {
			if currentLogLevelString == logLevelDebug {
				currentLogLevelString = logLevelInfo
				logger.SetLevel(slog.LevelInfo)
			} else {
				currentLogLevelString = logLevelDebug
				logger.SetLevel(slog.LevelDebug)
			}
			logger.L().Info("Log level set to", slog.String("level", currentLogLevelString))
		}

		// watch usr1 signal to rotate log level
		go func() {
			usr1SigCh := make(chan os.Signal, 1)
			signal.Notify(usr1SigCh, unix.SIGUSR1)
			for range usr1SigCh {
				rotateLogLevel()
			}
		}()

		argsLenAtDash := cmd.ArgsLenAtDash()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)

		go func() {
			<-c
			fmt.Fprintln(os.Stderr, "Interrupted, cleaning up...")
			cancel()
			runCleanups()
			os.Exit(1)
		}()

		err := opt.Complete(ctx, args, argsLenAtDash)
		if err != nil {
			err = errors.Wrap(err, "failed to complete")
			return err
		}
		err = opt.Validate(ctx)
		if err != nil {
			err = errors.Wrap(err, "failed to validate")
			return err
		}
		return errors.Wrap(opt.Run(ctx, args), "failed to run")
	}
}

type SpinnerWrapper struct {
	spinner *spinner.Spinner
}

func StartSpinner(format string, args ...interface{}) *SpinnerWrapper {
	if !strings.HasPrefix(format, " ") {
		format = " " + format
	}

	if GlobalCommandOption.Quiet {
		return &SpinnerWrapper{}
	}

	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = fmt.Sprintf(format, args...)
	s.Start()
	return &SpinnerWrapper{
		spinner: s,
	}
}

func (s *SpinnerWrapper) Stop() {
	if s.spinner == nil {
		return
	}
	s.spinner.Stop()
	s.spinner = nil
}
