package volume

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/moby/sys/mountinfo"
	"github.com/pkg/errors"

	"github.com/opencore-vm/ocpatch/pkg/common/cmdrunner"
	"github.com/opencore-vm/ocpatch/pkg/diskutil"
	"github.com/opencore-vm/ocpatch/pkg/logger"
)

const defaultFallbackMountPoint = "/Volumes/EFI"

// MountController makes a volume's contents available at a filesystem path
// and later releases it again. Mount state is re-queried from the OS at
// every decision point; it is never cached across a suspension point,
// because disk arbitration and other processes mutate it concurrently.
type MountController struct {
	du     *diskutil.Client
	runner cmdrunner.Runner
	locks  keyedMutex

	// FallbackMountPoint receives volumes mounted by name or through
	// mount_msdos when direct mounting fails.
	FallbackMountPoint string

	// SettleDelay is inserted before each strategy to avoid racing the
	// OS disk-arbitration daemon.
	SettleDelay time.Duration
}

func NewMountController(du *diskutil.Client, runner cmdrunner.Runner) *MountController {
	return &MountController{
		du:                 du,
		runner:             runner,
		FallbackMountPoint: defaultFallbackMountPoint,
		SettleDelay:        500 * time.Millisecond,
	}
}

// EnsureMounted returns the path at which vol is mounted, mounting it if
// necessary. Safe for concurrent use: a per-volume mutex serializes the
// attempt chain, and callers that lose the race observe the winner's mount
// through the double-checked state query.
func (c *MountController) EnsureMounted(ctx context.Context, vol Volume) (string, error) {
	if path, mounted := c.mountState(ctx, vol.Identifier); mounted {
		return path, nil
	}

	unlock := c.locks.lock(vol.Identifier)
	defer unlock()

	// another caller may have mounted the volume while we waited
	if path, mounted := c.mountState(ctx, vol.Identifier); mounted {
		return path, nil
	}

	strategies := []struct {
		name string
		fn   func(context.Context, Volume) (string, error)
	}{
		{"diskutil mount", c.mountByIdentifier},
		{"diskutil mount by volume name", c.mountByName},
		{"mount_msdos", c.mountMSDOS},
	}

	var attempts []StrategyError
	for _, s := range strategies {
		c.settle(ctx)
		path, err := s.fn(ctx, vol)
		if diskutil.IsResourceBusy(err) {
			// one controlled retry once the arbitration window passes
			logger.L().Debug("mount target busy, retrying",
				slog.String("volume", vol.Identifier), slog.String("strategy", s.name))
			c.settle(ctx)
			c.settle(ctx)
			path, err = s.fn(ctx, vol)
		}
		if err == nil {
			return path, nil
		}
		logger.L().Debug("mount strategy failed",
			slog.String("volume", vol.Identifier), slog.String("strategy", s.name),
			slog.String("error", err.Error()))
		attempts = append(attempts, StrategyError{Strategy: s.name, Err: err})
	}
	return "", &MountFailedError{Volume: vol.Identifier, Attempts: attempts}
}

// EnsureUnmounted releases the volume named by a device identifier or
// mount path. It is idempotent; nil means the volume is verified
// unmounted. An UnmountFailedError means every strategy was exhausted and
// the caller must finish manually.
func (c *MountController) EnsureUnmounted(ctx context.Context, target string) error {
	info, err := c.du.Info(ctx, target)
	if err != nil {
		// the volume is unknown to diskutil; nothing to release
		logger.L().Debug("unmount target not found, treating as unmounted",
			slog.String("target", target), slog.String("error", err.Error()))
		return nil
	}
	if !info.Mounted {
		return nil
	}

	id := info.DeviceIdentifier
	if id == "" {
		id = target
	}

	unlock := c.locks.lock(id)
	defer unlock()

	// re-check under the lock; another caller may have released it
	info, err = c.du.Info(ctx, id)
	if err != nil || !info.Mounted {
		return nil
	}
	path := info.MountPoint

	type step struct {
		name   string
		target string
		force  bool
	}
	var steps []step
	if path != "" {
		steps = append(steps, step{"unmount by path", path, false})
	}
	steps = append(steps, step{"unmount by identifier", id, false})
	if path != "" {
		steps = append(steps, step{"force unmount by path", path, true})
	}
	steps = append(steps, step{"force unmount by identifier", id, true})

	var attempts []StrategyError
	for _, s := range steps {
		c.settle(ctx)
		if err := c.du.Unmount(ctx, s.target, s.force); err != nil {
			attempts = append(attempts, StrategyError{Strategy: s.name, Err: err})
			continue
		}
		if c.verifyUnmounted(ctx, id, path) {
			return nil
		}
		// a success report with the mount point still present is a
		// failure, not a success
		attempts = append(attempts, StrategyError{
			Strategy: s.name,
			Err:      errors.New("tool reported success but the volume is still mounted"),
		})
	}
	return &UnmountFailedError{Target: target, Attempts: attempts}
}

// mountState performs a fresh OS query of the volume's mount state.
func (c *MountController) mountState(ctx context.Context, id string) (string, bool) {
	info, err := c.du.Info(ctx, id)
	if err != nil {
		return "", false
	}
	if info.Mounted && info.MountPoint != "" {
		return info.MountPoint, true
	}
	return "", false
}

func (c *MountController) mountByIdentifier(ctx context.Context, vol Volume) (string, error) {
	path, err := c.du.Mount(ctx, vol.Identifier)
	if err != nil {
		return "", err
	}
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		}
	}
	// the tool did not report a usable path; read it back from the OS
	if p, ok := c.mountState(ctx, vol.Identifier); ok {
		return p, nil
	}
	if path != "" {
		return "", errors.Errorf("mount point %s does not exist after mount", path)
	}
	return "", errors.New("mount reported success but the volume is not mounted")
}

func (c *MountController) mountByName(ctx context.Context, vol Volume) (string, error) {
	name := vol.Name
	if name == "" {
		name = "EFI"
	}
	if err := os.MkdirAll(c.FallbackMountPoint, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create mount point %s", c.FallbackMountPoint)
	}

	path, err := c.du.Mount(ctx, name)
	if err != nil {
		return "", err
	}
	if path == "" {
		path = c.FallbackMountPoint
	}

	// mounting by name can grab a sibling EFI partition; verify the
	// right volume ended up here and evict it otherwise
	info, err := c.du.Info(ctx, path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to verify volume at %s", path)
	}
	if info.DeviceIdentifier != vol.Identifier {
		if unmountErr := c.du.Unmount(ctx, path, false); unmountErr != nil {
			logger.L().Warn("failed to unmount wrong volume",
				slog.String("path", path), slog.String("error", unmountErr.Error()))
		}
		return "", errors.Errorf("wrong volume %s mounted at %s", info.DeviceIdentifier, path)
	}
	return path, nil
}

func (c *MountController) mountMSDOS(ctx context.Context, vol Volume) (string, error) {
	if err := os.MkdirAll(c.FallbackMountPoint, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create mount point %s", c.FallbackMountPoint)
	}

	dev := vol.Identifier
	if !strings.HasPrefix(dev, "/dev/") {
		dev = "/dev/" + dev
	}
	res, err := c.runner.Run(ctx, "mount_msdos", dev, c.FallbackMountPoint)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		// mount_msdos occasionally exits non-zero after the mount took
		// effect; believe the mount table over the exit status
		if mounted, mountErr := mountinfo.Mounted(c.FallbackMountPoint); mountErr != nil || !mounted {
			return "", errors.Errorf("mount_msdos %s: %s", dev, res.Output())
		}
	}
	if path, ok := c.mountState(ctx, vol.Identifier); ok {
		return path, nil
	}
	return c.FallbackMountPoint, nil
}

func (c *MountController) verifyUnmounted(ctx context.Context, id, path string) bool {
	if info, err := c.du.Info(ctx, id); err == nil && info.Mounted {
		return false
	}
	if path != "" {
		if mounted, err := mountinfo.Mounted(path); err == nil && mounted {
			return false
		}
	}
	return true
}

func (c *MountController) settle(ctx context.Context) {
	if c.SettleDelay <= 0 {
		return
	}
	t := time.NewTimer(c.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
