package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dudu/aivision/internal/config"
	"github.com/dudu/aivision/internal/pipeline"
)

// set by -ldflags at release time
var (
	version = "dev"
	commit  = "none"
)

const envLogLevel = "AIVISION_LOG_LEVEL"

type globalOptions struct {
	configPath string
	logLevel   string
	gpu        bool
	libPath    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "aivision",
		Short:         "Local image AI: colorize, anonymize faces, remove backgrounds, stylize, upscale, segment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); env "+envLogLevel)
	flags.BoolVar(&opts.gpu, "gpu", false, "prefer the GPU execution provider")
	flags.StringVar(&opts.libPath, "lib", "", "path to the ONNX Runtime shared library")

	root.AddCommand(
		newColorizeCmd(opts),
		newFacesCmd(opts),
		newRemoveBackgroundCmd(opts),
		newStyleCmd(opts),
		newUpscaleCmd(opts),
		newSegmentCmd(opts),
		newVersionCmd(),
	)
	return root
}

// setup loads the config, applies the global flags over it and builds a
// pipeline. edit may adjust the config before the pipeline is created.
func setup(cmd *cobra.Command, opts *globalOptions, edit func(*config.Config)) (*pipeline.Pipeline, *logrus.Logger, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return nil, nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("gpu") {
		cfg.Runtime.UseGPU = opts.gpu
	}
	if flags.Changed("lib") {
		cfg.Runtime.LibraryPath = opts.libPath
	}
	if edit != nil {
		edit(&cfg)
	}

	log, err := newLogger(opts.logLevel, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	p, err := pipeline.New(cfg, nil, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return p, log, nil
}

// newLogger writes text logs to stderr. The flag wins over the environment,
// which wins over the config file.
func newLogger(flagLevel, configLevel string) (*logrus.Logger, error) {
	level := flagLevel
	if level == "" {
		level = os.Getenv(envLogLevel)
	}
	if level == "" {
		level = configLevel
	}
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(lvl)
	return log, nil
}

// outputPath returns out, or input with suffix appended and a .png extension.
func outputPath(input, out, suffix string) string {
	if out != "" {
		return out
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + "_" + suffix + ".png"
}

func writeOutput(log logrus.FieldLogger, path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	log.WithField("path", path).Info("saved")
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aivision %s (%s)\n", version, commit)
		},
	}
}
