package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/soilscan/internal/acquire"
	"github.com/Brownie44l1/soilscan/internal/pipeline"
	"github.com/Brownie44l1/soilscan/internal/soil"
)

var predictJSON bool

var predictCmd = &cobra.Command{
	Use:   "predict [image]",
	Short: "Classify one soil image and print the result",
	Long: `Loads the model, runs the image through the prediction pipeline and
prints the soil type, pH range, crops and potassium range.

Example:
  soilscan predict samples/loam.jpg
  soilscan predict --json file:///photos/field.png`,
	Args: cobra.ExactArgs(1),
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "print the result as JSON")
}

func runPredict(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, cancel := startModel(ctx)
	defer cancel()
	defer closeModel(h)

	if _, err := h.Wait(ctx); err != nil {
		return err
	}

	ctrl := pipeline.New(h, pipeline.Options{Logger: logger})
	defer ctrl.Close()

	picker := acquire.PathPicker{Path: args[0], Extensions: cfg.Picker.Extensions}
	if err := ctrl.Pick(ctx, picker); err != nil {
		return err
	}
	st, err := ctrl.Wait(ctx)
	if err != nil {
		return err
	}

	switch st.Phase() {
	case pipeline.Succeeded:
		res, _ := st.Result()
		logger.Debug("printing result", zap.String("id", res.ID))
		if predictJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printResult(cmd.OutOrStdout(), res)
		return nil
	case pipeline.Failed:
		return errors.New(st.Message())
	default:
		return fmt.Errorf("no prediction (pipeline %s)", st.Phase())
	}
}

func printResult(w io.Writer, res soil.Result) {
	fmt.Fprintf(w, "Soil Type: %s\n", res.Category.Title())
	fmt.Fprintf(w, "pH Range: %s\n", res.Attributes.PHRange)
	fmt.Fprintf(w, "Crops: %s\n", res.Attributes.Crops)
	fmt.Fprintf(w, "Potassium: %s\n", res.Attributes.Potassium)
	fmt.Fprintf(w, "Confidence: %.1f%%\n", res.Confidence*100)
}

func printJSON(w io.Writer, res soil.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
