package cmd

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/opencore-vm/ocpatch/pkg/common/cmdrunner"
	"github.com/opencore-vm/ocpatch/pkg/common/command"
	"github.com/opencore-vm/ocpatch/pkg/diskutil"
	"github.com/opencore-vm/ocpatch/pkg/volume"
)

type UnmountOption struct {
	Target string
}

func (opt *UnmountOption) Complete(ctx context.Context, args []string, argsLenAtDash int) error {
	if len(args) > 0 {
		opt.Target = args[0]
	}
	return nil
}

func (opt *UnmountOption) Validate(ctx context.Context) error {
	if opt.Target == "" {
		return errors.New("a partition identifier or mount path is required")
	}
	return nil
}

func (opt *UnmountOption) Run(ctx context.Context, args []string) error {
	runner := cmdrunner.New()
	du := diskutil.NewClient(runner)
	ctl := volume.NewMountController(du, runner)
	return ctl.EnsureUnmounted(ctx, opt.Target)
}

func NewUnmountCommand() *cobra.Command {
	opt := &UnmountOption{}
	cmd := &cobra.Command{
		Use:   "unmount <identifier-or-path>",
		Short: "Unmount an EFI partition",
		Args:  cobra.MaximumNArgs(1),
		RunE:  command.MakeRunE(opt),
	}
	return cmd
}
