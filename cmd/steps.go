package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Gateworks/gst-gateworks-apps/internal/quality"
	"github.com/Gateworks/gst-gateworks-apps/internal/types"
)

// CreateStepsCmd creates the steps command.
func CreateStepsCmd() *cobra.Command {
	cfg := quality.DefaultConfig()
	var mode, policy string
	var clients int

	cmd := &cobra.Command{
		Use:   "steps",
		Short: "Print the quality applied for each viewer count",
		Long: `Computes the encoder target for 1..N viewers from the given bounds, mode and policy, ` +
			`the same way the server does when viewers join and leave.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cfg.Mode = quality.Mode(mode)
			cfg.Policy = quality.Policy(policy)
			if err := runSteps(cmd.OutOrStdout(), cfg, clients); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				os.Exit(types.ExitArgs)
			}
		},
	}

	cmd.Flags().IntVar(&cfg.Steps, "steps", cfg.Steps, "Quality levels between the bounds")
	cmd.Flags().IntVar(&cfg.MinBitrate, "min-bitrate", cfg.MinBitrate, "Lowest bitrate in kbit/s")
	cmd.Flags().IntVar(&cfg.MaxBitrate, "max-bitrate", cfg.MaxBitrate, "Highest bitrate in kbit/s, 0 selects constant-quality mode")
	cmd.Flags().IntVar(&cfg.MinQuant, "min-quant-lvl", cfg.MinQuant, "Best quantizer level")
	cmd.Flags().IntVar(&cfg.MaxQuant, "max-quant-lvl", cfg.MaxQuant, "Worst quantizer level")
	cmd.Flags().StringVar(&mode, "mode", string(cfg.Mode), "Quality axis (auto, bitrate, quant)")
	cmd.Flags().StringVar(&policy, "policy", string(cfg.Policy), "Step policy (linear, tier)")
	cmd.Flags().IntVar(&clients, "clients", 10, "Largest viewer count to print")

	return cmd
}

func runSteps(w io.Writer, cfg quality.Config, clients int) error {
	normalized, warnings, err := cfg.Normalize()
	if err != nil {
		return err
	}
	for _, warn := range warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}

	stepper := normalized.Stepper()
	fmt.Fprintf(w, "mode=%s policy=%s best=%d worst=%d step=%d\n",
		stepper.Mode, stepper.Policy, stepper.Best(), stepper.Worst(), stepper.StepFactor())

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLIENTS\tVALUE\t")
	for _, row := range stepper.Table(clients) {
		mark := ""
		if row.Clamped {
			mark = "clamped"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\n", row.Clients, row.Value, mark)
	}
	return tw.Flush()
}
