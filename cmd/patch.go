package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/spf13/cobra"

	"github.com/opencore-vm/ocpatch/pkg/common/cmdrunner"
	"github.com/opencore-vm/ocpatch/pkg/common/command"
	"github.com/opencore-vm/ocpatch/pkg/diskutil"
	"github.com/opencore-vm/ocpatch/pkg/logger"
	"github.com/opencore-vm/ocpatch/pkg/occonfig"
	"github.com/opencore-vm/ocpatch/pkg/patch"
	"github.com/opencore-vm/ocpatch/pkg/volume"
)

type PatchOption struct {
	ConfigPath string
	Yes        bool
	Reboot     bool
}

func (opt *PatchOption) Complete(ctx context.Context, args []string, argsLenAtDash int) error {
	return nil
}

func (opt *PatchOption) Validate(ctx context.Context) error {
	if opt.ConfigPath == "" {
		return nil
	}
	fi, err := os.Stat(opt.ConfigPath)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", opt.ConfigPath)
	}
	if !fi.Mode().IsRegular() {
		return errors.Errorf("%s is not a regular file", opt.ConfigPath)
	}
	return nil
}

type volumeOutcome int

const (
	outcomeNoConfig volumeOutcome = iota
	outcomeSkipped
	outcomeDeclined
	outcomeApplied
	outcomeAlreadyPresent
	outcomeFailed
)

func (opt *PatchOption) Run(ctx context.Context, args []string) error {
	runner := cmdrunner.New()
	log := logger.L().With(slog.String("run_id", xid.New().String()))
	engine := patch.NewEngine(runner)
	records := patch.SonomaBTPatches()

	if opt.ConfigPath != "" {
		return opt.applyDirect(ctx, log, runner, engine, records)
	}

	du := diskutil.NewClient(runner)
	locator := volume.NewLocator(du)
	ctl := volume.NewMountController(du, runner)
	tracker := newMountTracker(ctl)
	command.OnInterrupt(tracker.ReleaseAll)

	spin := command.StartSpinner("scanning for EFI partitions")
	vols, err := locator.EFIPartitions(ctx)
	spin.Stop()
	if err != nil {
		return errors.Wrap(err, "failed to discover EFI partitions")
	}
	if len(vols) == 0 {
		return errors.New("no EFI partitions found; mount your EFI volume manually and re-run with --config")
	}
	log.Info("found EFI partitions", slog.Int("count", len(vols)))

	var (
		applied bool
		lastErr error
	)
	for _, vol := range vols {
		outcome, err := opt.processVolume(ctx, log, du, ctl, tracker, engine, vol, records)
		switch outcome {
		case outcomeApplied:
			applied = true
		case outcomeAlreadyPresent:
			log.Info("system is already patched, no restart required")
			return nil
		case outcomeDeclined:
			log.Info("operation cancelled by user")
			return nil
		case outcomeFailed:
			lastErr = err
		}
		if applied {
			break
		}
	}

	if applied {
		log.Info("patching complete, reboot to apply the changes")
		if opt.Reboot {
			return restartSystem(ctx, runner, log)
		}
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return errors.New("no OpenCore config.plist found on any EFI partition")
}

func (opt *PatchOption) applyDirect(ctx context.Context, log *slog.Logger, runner cmdrunner.Runner, engine *patch.Engine, records []patch.Record) error {
	if !opt.Yes {
		switch promptYesNoSkip(fmt.Sprintf("Apply the Sonoma VM BT Enabler patches to %s?", opt.ConfigPath)) {
		case answerNo, answerSkip:
			log.Info("operation cancelled by user")
			return nil
		}
	}

	res, err := engine.Apply(ctx, opt.ConfigPath, records)
	if err != nil {
		log.Error("failed to patch config",
			slog.String("error", err.Error()),
			slog.String("backup", patch.BackupPath(opt.ConfigPath)))
		return err
	}
	if res == patch.ResultAlreadyPresent {
		log.Info("patches already present, no restart required")
		return nil
	}
	log.Info("patches applied, reboot to apply the changes", slog.String("path", opt.ConfigPath))
	if opt.Reboot {
		return restartSystem(ctx, runner, log)
	}
	return nil
}

func (opt *PatchOption) processVolume(
	ctx context.Context,
	log *slog.Logger,
	du *diskutil.Client,
	ctl *volume.MountController,
	tracker *mountTracker,
	engine *patch.Engine,
	vol volume.Volume,
	records []patch.Record,
) (volumeOutcome, error) {
	log = log.With(slog.String("volume", vol.Identifier))

	spin := command.StartSpinner("mounting %s", vol.Identifier)
	mountPath, err := ctl.EnsureMounted(ctx, vol)
	spin.Stop()
	if err != nil {
		log.Warn("failed to mount, skipping", slog.String("error", err.Error()))
		var mf *volume.MountFailedError
		if errors.As(err, &mf) {
			for _, a := range mf.Attempts {
				log.Warn("mount attempt failed",
					slog.String("strategy", a.Strategy), slog.String("error", a.Err.Error()))
			}
			if status, sipErr := du.SIPStatus(ctx); sipErr == nil {
				log.Info("system integrity protection", slog.String("status", status))
			}
		}
		return outcomeNoConfig, nil
	}
	tracker.Add(vol.Identifier)
	defer func() {
		if err := ctl.EnsureUnmounted(ctx, vol.Identifier); err != nil {
			log.Warn("failed to unmount, please finish manually with Disk Utility",
				slog.String("error", err.Error()))
			return
		}
		tracker.Remove(vol.Identifier)
	}()

	spin = command.StartSpinner("searching %s for an OpenCore config", mountPath)
	cfgPath, err := occonfig.Find(mountPath)
	spin.Stop()
	if err != nil {
		if errors.Is(err, occonfig.ErrNotFound) {
			log.Info("no OpenCore config.plist found")
			return outcomeNoConfig, nil
		}
		return outcomeFailed, errors.Wrap(err, "failed to search for config.plist")
	}
	log.Info("found OpenCore config", slog.String("path", cfgPath))

	if !opt.Yes {
		switch promptYesNoSkip(fmt.Sprintf("Apply the Sonoma VM BT Enabler patches to %s?", cfgPath)) {
		case answerNo:
			return outcomeDeclined, nil
		case answerSkip:
			log.Info("skipping this partition")
			return outcomeSkipped, nil
		}
	}

	spin = command.StartSpinner("patching %s", cfgPath)
	res, err := engine.Apply(ctx, cfgPath, records)
	spin.Stop()
	if err != nil {
		log.Error("failed to patch config",
			slog.String("error", err.Error()),
			slog.String("backup", patch.BackupPath(cfgPath)))
		return outcomeFailed, err
	}
	if res == patch.ResultAlreadyPresent {
		log.Info("patches already present, no changes needed")
		return outcomeAlreadyPresent, nil
	}
	log.Info("patches applied", slog.String("path", cfgPath))
	return outcomeApplied, nil
}

func restartSystem(ctx context.Context, runner cmdrunner.Runner, log *slog.Logger) error {
	log.Info("restarting system")
	res, err := runner.Run(ctx, "shutdown", "-r", "now")
	if err != nil {
		return errors.Wrap(err, "failed to restart")
	}
	if !res.Success() {
		return errors.Errorf("shutdown failed: %s", res.Output())
	}
	return nil
}

type answer int

const (
	answerYes answer = iota
	answerNo
	answerSkip
)

func promptYesNoSkip(msg string) answer {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Fprintf(os.Stderr, "%s [y/n/skip]: ", msg)
		line, err := reader.ReadString('\n')
		if err != nil {
			return answerNo
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return answerYes
		case "n", "no":
			return answerNo
		case "skip":
			return answerSkip
		}
		fmt.Fprintln(os.Stderr, "Please answer y, n, or skip.")
	}
}

func NewPatchCommand() *cobra.Command {
	opt := &PatchOption{}
	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Find the OpenCore config and apply the Sonoma VM BT Enabler patches",
		RunE:  command.MakeRunE(opt),
	}
	cmd.Flags().StringVarP(&opt.ConfigPath, "config", "c", "", "Patch this config.plist directly instead of discovering EFI partitions")
	cmd.Flags().BoolVarP(&opt.Yes, "yes", "y", false, "Apply without asking for confirmation")
	cmd.Flags().BoolVarP(&opt.Reboot, "reboot", "r", false, "Restart the system after a successful patch")
	return cmd
}
