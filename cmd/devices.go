package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Gateworks/gst-gateworks-apps/internal/capture"
	"github.com/Gateworks/gst-gateworks-apps/internal/types"
)

// CreateListDevicesCmd creates the list-devices command.
func CreateListDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-devices",
		Short: "List V4L2 capture devices usable as --video-in",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			devices, err := capture.List()
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				os.Exit(types.ExitArgs)
			}
			if err := printDevices(cmd.OutOrStdout(), devices); err != nil {
				os.Exit(types.ExitArgs)
			}
		},
	}
}

func printDevices(w io.Writer, devices []capture.Device) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "no capture devices found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tNAME\tDRIVER\tID")
	for _, d := range devices {
		id := d.ID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Path, d.Name, d.Driver, id)
	}
	return tw.Flush()
}
