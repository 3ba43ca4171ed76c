package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "camcord",
	Short: "Camcord camera recorder",
	Long: `Camcord captures frames from a local camera, records them to a
Matroska container file, and feeds a live preview buffer at the same time.
The recording is finalized on shutdown so the file is always playable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(NewRecordCommand())
	rootCmd.AddCommand(NewDevicesCommand())
}
