package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pixelfold/camcord/internal/capture"
)

func NewDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices := capture.ListDevices()
			if len(devices) == 0 {
				fmt.Println("No capture devices found")
				return nil
			}

			for _, dev := range devices {
				name := dev.Name
				if name == "" {
					name = "(unknown)"
				}
				fmt.Printf("%s  %s  %s\n", color.CyanString("%d", dev.Index), dev.Path, name)
			}
			return nil
		},
	}
}
