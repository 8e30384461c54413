package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/soilscan/internal/soil"
)

var labelsCmd = &cobra.Command{
	Use:   "labels [soil-type]",
	Short: "Show the soil types the model predicts and their reference data",
	Long: `Without arguments prints every soil type in model output order with its
pH range, crops and potassium range. With an argument looks up that one
soil type.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLabels,
}

func runLabels(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		c, known := soil.Parse(args[0])
		if !known {
			logger.Debug("unknown soil type", zap.String("input", args[0]))
		}
		attrs := soil.AttributesFor(c)
		fmt.Fprintf(out, "Soil Type: %s\n", c.Title())
		fmt.Fprintf(out, "pH Range: %s\n", attrs.PHRange)
		fmt.Fprintf(out, "Crops: %s\n", attrs.Crops)
		fmt.Fprintf(out, "Potassium: %s\n", attrs.Potassium)
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "SOIL TYPE", "PH RANGE", "POTASSIUM", "CROPS")
	for i, c := range soil.Labels() {
		attrs := soil.AttributesFor(c)
		t.Row(fmt.Sprint(i), string(c), attrs.PHRange, attrs.Potassium, attrs.Crops)
	}
	fmt.Fprintln(out, t.Render())
	return nil
}
