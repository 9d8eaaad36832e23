package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/opencore-vm/ocpatch/pkg/common/command"
)

var rootCmd = &cobra.Command{
	Use:   "ocpatch",
	Short: "Apply the Sonoma VM BT Enabler patches to an OpenCore config.plist",
	Long: `ocpatch finds the EFI system partition holding your OpenCore
configuration and appends the kernel patches that re-enable Bluetooth
for macOS Sonoma running inside a VM. All edits are transactional: a
backup is taken first and the config is swapped in atomically.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&command.GlobalCommandOption.Debug, "debug", "d", false, "debug mode, output verbose output")
	rootCmd.PersistentFlags().BoolVarP(&command.GlobalCommandOption.Quiet, "quiet", "q", false, "disable spinner and logs")
	rootCmd.AddCommand(NewPatchCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewMountCommand())
	rootCmd.AddCommand(NewUnmountCommand())
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
