package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/opencore-vm/ocpatch/pkg/common/cmdrunner"
	"github.com/opencore-vm/ocpatch/pkg/common/command"
	"github.com/opencore-vm/ocpatch/pkg/diskutil"
	"github.com/opencore-vm/ocpatch/pkg/volume"
)

type ListOption struct{}

func (opt *ListOption) Complete(ctx context.Context, args []string, argsLenAtDash int) error {
	return nil
}

func (opt *ListOption) Validate(ctx context.Context) error {
	return nil
}

func (opt *ListOption) Run(ctx context.Context, args []string) error {
	runner := cmdrunner.New()
	du := diskutil.NewClient(runner)
	locator := volume.NewLocator(du)

	vols, err := locator.EFIPartitions(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to discover EFI partitions")
	}
	if len(vols) == 0 {
		fmt.Println("no EFI partitions found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTIFIER\tDISK\tNAME\tMOUNTED AT")
	for _, vol := range vols {
		mountPoint := "-"
		if info, err := du.Info(ctx, vol.Identifier); err == nil && info.Mounted && info.MountPoint != "" {
			mountPoint = info.MountPoint
		}
		name := vol.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", vol.Identifier, vol.Disk, name, mountPoint)
	}
	return errors.Wrap(w.Flush(), "failed to flush output")
}

func NewListCommand() *cobra.Command {
	opt := &ListOption{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List detected EFI partitions",
		RunE:  command.MakeRunE(opt),
	}
	return cmd
}
