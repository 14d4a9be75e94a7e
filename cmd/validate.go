package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Gateworks/gst-gateworks-apps/internal/config"
	"github.com/Gateworks/gst-gateworks-apps/internal/encoder"
	"github.com/Gateworks/gst-gateworks-apps/internal/pipeline"
	"github.com/Gateworks/gst-gateworks-apps/internal/session"
	"github.com/Gateworks/gst-gateworks-apps/internal/types"
)

// CreateValidatePipelineCmd creates the validate-pipeline command.
func CreateValidatePipelineCmd() *cobra.Command {
	var opts config.PipelineOptions

	cmd := &cobra.Command{
		Use:   "validate-pipeline",
		Short: "Check that a launch description can be served",
		Long: `Parses the launch description, binds the source, transform, encoder and packetizer ` +
			`roles, and prints the encoder's quality controls. Exits 2 when the description does not ` +
			`parse and 3 when a required element is missing.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			os.Exit(runValidatePipeline(cmd.OutOrStdout(), opts))
		},
	}

	cmd.Flags().StringVar(&opts.UserPipeline, "user-pipeline", "", "Full launch description")
	cmd.Flags().StringVar(&opts.PipelineFile, "pipeline-file", "", "File holding the launch description")
	cmd.Flags().StringVar(&opts.SrcElement, "src-element", "v4l2src", "Source element of the stock pipeline")
	cmd.Flags().StringVar(&opts.CapsFilter, "caps-filter", "", "Caps filter placed after the source")

	return cmd
}

func runValidatePipeline(w io.Writer, opts config.PipelineOptions) int {
	description, _, err := config.ResolvePipeline(opts)
	if err != nil {
		fmt.Fprintf(w, "invalid description: %v\n", err)
		return types.ExitElement
	}

	graph, err := pipeline.Parse(description)
	if err != nil {
		fmt.Fprintf(w, "invalid description: %v\n", err)
		return types.ExitElement
	}
	fmt.Fprintf(w, "pipeline: %s\n", graph.Render())

	bindings, err := session.Bind(graph, session.DefaultRoleNames())
	if err != nil {
		fmt.Fprintf(w, "binding failed: %v\n", err)
		var cfgErr *types.ConfigError
		if errors.As(err, &cfgErr) {
			return cfgErr.ExitCode()
		}
		return types.ExitPipeline
	}

	for _, r := range session.Roles {
		el := bindings.Element(r)
		fmt.Fprintf(w, "%-10s %s (%s)\n", r+":", el.Name(), el.TypeName())
	}

	surface := encoder.Describe(bindings.EncoderKind)
	axes := make([]string, 0, len(surface.Axes))
	for _, a := range surface.Axes {
		axes = append(axes, string(a))
	}
	fmt.Fprintf(w, "encoder kind: %s\n", surface.Kind)
	if len(axes) == 0 {
		fmt.Fprintln(w, "quality axes: none, viewer count will not change the stream")
		return types.ExitOK
	}
	fmt.Fprintf(w, "quality axes: %s\n", strings.Join(axes, ", "))
	if surface.BitrateProperty != "" {
		fmt.Fprintf(w, "bitrate: %s (%s)\n", surface.BitrateProperty, surface.BitrateUnit)
	}
	if surface.QuantProperty != "" {
		fmt.Fprintf(w, "quantizer: %s\n", surface.QuantProperty)
	}
	if surface.Aggregate != "" {
		fmt.Fprintf(w, "controls: %s {%s}\n", surface.Aggregate, strings.Join(surface.AggregateKeys, ", "))
	}
	return types.ExitOK
}
