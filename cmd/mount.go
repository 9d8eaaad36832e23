package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/opencore-vm/ocpatch/pkg/common/cmdrunner"
	"github.com/opencore-vm/ocpatch/pkg/common/command"
	"github.com/opencore-vm/ocpatch/pkg/diskutil"
	"github.com/opencore-vm/ocpatch/pkg/volume"
)

type MountOption struct {
	Identifier string
}

func (opt *MountOption) Complete(ctx context.Context, args []string, argsLenAtDash int) error {
	if len(args) > 0 {
		opt.Identifier = args[0]
	}
	return nil
}

func (opt *MountOption) Validate(ctx context.Context) error {
	if opt.Identifier == "" {
		return errors.New("a partition identifier is required, e.g. disk0s1")
	}
	return nil
}

func (opt *MountOption) Run(ctx context.Context, args []string) error {
	runner := cmdrunner.New()
	du := diskutil.NewClient(runner)
	ctl := volume.NewMountController(du, runner)

	info, err := du.Info(ctx, opt.Identifier)
	if err != nil {
		return errors.Wrapf(err, "failed to query %s", opt.Identifier)
	}

	path, err := ctl.EnsureMounted(ctx, volume.Volume{
		Identifier: info.DeviceIdentifier,
		Disk:       info.PartOfWhole,
		Name:       info.VolumeName,
	})
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func NewMountCommand() *cobra.Command {
	opt := &MountOption{}
	cmd := &cobra.Command{
		Use:   "mount <identifier>",
		Short: "Mount an EFI partition and print its mount point",
		Args:  cobra.MaximumNArgs(1),
		RunE:  command.MakeRunE(opt),
	}
	return cmd
}
