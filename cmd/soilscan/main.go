// Command soilscan classifies soil photos with a bundled ONNX model and shows
// the pH range, suitable crops and potassium range for the predicted type.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/soilscan/internal/config"
	"github.com/Brownie44l1/soilscan/internal/logging"
	"github.com/Brownie44l1/soilscan/internal/model"
	"github.com/Brownie44l1/soilscan/internal/soil"
	"github.com/Brownie44l1/soilscan/internal/tui"
)

var (
	cfgPath    string
	modelDir   string
	runtimeLib string
	logFile    string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "soilscan",
	Short: "Classify a soil photo and show its pH, crop and potassium data",
	Long: `soilscan runs an on-device image classifier over a soil photo and
reports the predicted soil type together with its typical pH range,
suitable crops and potassium range.

Run without arguments to open the interactive screen.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loadDotEnv()

		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if modelDir != "" {
			cfg.Model.Dir = modelDir
		}
		if runtimeLib != "" {
			cfg.Model.RuntimeLibrary = runtimeLib
		}
		if logFile != "" {
			cfg.Logging.File = logFile
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		// The interactive screen owns the terminal.
		if cmd == cmd.Root() && cfg.Logging.File == "" {
			cfg.Logging.File = filepath.Join(os.TempDir(), "soilscan.log")
		}

		logger, err = logging.New(cfg.Logging)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runScreen,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultPath, "config file")
	rootCmd.PersistentFlags().StringVarP(&modelDir, "models", "m", "", "model bundle directory (model.onnx + model_metadata.json)")
	rootCmd.PersistentFlags().StringVar(&runtimeLib, "ort-lib", "", "path to the onnxruntime shared library")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(predictCmd, labelsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScreen(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, cancel := startModel(ctx)
	defer cancel()
	defer closeModel(h)

	return tui.Run(ctx, h, tui.Options{
		StartDir:   cfg.Picker.StartDir,
		Extensions: cfg.Picker.Extensions,
		Logger:     logger,
	})
}

// startModel begins loading the bundle in the background.
func startModel(ctx context.Context) (*model.Handle, context.CancelFunc) {
	opts := model.Options{
		Dir:            cfg.Model.Dir,
		ModelPath:      cfg.Model.File,
		MetadataPath:   cfg.Model.Metadata,
		RuntimeLibrary: cfg.Model.RuntimeLibrary,
		Classes:        soil.LabelStrings(),
		Logger:         logger,
	}
	logger.Info("loading model", zap.String("dir", cfg.Model.Dir))

	loadCtx, cancel := context.WithTimeout(ctx, cfg.Model.GetLoadTimeout())
	h := model.NewHandle(logger)
	h.Load(loadCtx, model.ONNXLoader(opts))
	return h, cancel
}

func closeModel(h *model.Handle) {
	if err := h.Close(); err != nil {
		logger.Warn("failed to release model", zap.Error(err))
	}
}

// loadDotEnv loads the nearest .env walking up from the working directory.
func loadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				fmt.Fprintf(os.Stderr, "warning: %s: %v\n", envPath, err)
			}
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
