// Command modelinspect prints the input and output contract of an ONNX model.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/aivision/internal/inference"
)

func main() {
	var (
		libPath string
		metal   bool
	)
	cmd := &cobra.Command{
		Use:           "modelinspect <model.onnx>",
		Short:         "Print the inputs, outputs and metadata of an ONNX model",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			modelPath := args[0]
			if _, err := os.Stat(modelPath); err != nil {
				return fmt.Errorf("%w: %w", inference.ErrModelPath, err)
			}
			w := cmd.OutOrStdout()

			if err := inference.Initialize(libPath); err != nil {
				return err
			}
			defer inference.Shutdown()

			if err := inspect(w, modelPath); err != nil {
				return err
			}
			if metal {
				return checkMetal(w, modelPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&libPath, "lib", "", "path to the ONNX Runtime shared library")
	cmd.Flags().BoolVar(&metal, "metal", false, "also try importing the graph with go-metal (macOS)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func inspect(w io.Writer, modelPath string) error {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return fmt.Errorf("failed to get model info: %w", err)
	}

	fmt.Fprintf(w, "Model: %s\n", modelPath)
	fmt.Fprintf(w, "\nInputs (%d):\n", len(inputs))
	for _, info := range inputs {
		fmt.Fprintf(w, "  %s: shape=%v, type=%v\n", info.Name, info.Dimensions, info.DataType)
	}
	fmt.Fprintf(w, "\nOutputs (%d):\n", len(outputs))
	for _, info := range outputs {
		fmt.Fprintf(w, "  %s: shape=%v, type=%v\n", info.Name, info.Dimensions, info.DataType)
	}

	fmt.Fprintln(w, "\nMetadata:")
	metadata, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		fmt.Fprintf(w, "  (could not read metadata: %v)\n", err)
		return nil
	}
	defer metadata.Destroy()
	if producer, err := metadata.GetProducerName(); err == nil {
		fmt.Fprintf(w, "  Producer: %s\n", producer)
	}
	if version, err := metadata.GetVersion(); err == nil {
		fmt.Fprintf(w, "  Version: %d\n", version)
	}
	if domain, err := metadata.GetDomain(); err == nil {
		fmt.Fprintf(w, "  Domain: %s\n", domain)
	}
	if desc, err := metadata.GetDescription(); err == nil && desc != "" {
		fmt.Fprintf(w, "  Description: %s\n", desc)
	}
	return nil
}
