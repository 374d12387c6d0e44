//go:build darwin

package main

import (
	"fmt"
	"io"

	"github.com/tsawler/go-metal/checkpoints"
)

// checkMetal reports whether go-metal can import the graph. go-metal covers
// only a small operator set, so most detection and generation models fail.
func checkMetal(w io.Writer, modelPath string) error {
	fmt.Fprintln(w, "\ngo-metal import:")
	checkpoint, err := checkpoints.NewONNXImporter().ImportFromONNX(modelPath)
	if err != nil {
		fmt.Fprintf(w, "  not supported: %v\n", err)
		return nil
	}
	fmt.Fprintf(w, "  layers: %d, weights: %d tensors\n", len(checkpoint.ModelSpec.Layers), len(checkpoint.Weights))
	for i, layer := range checkpoint.ModelSpec.Layers {
		fmt.Fprintf(w, "  %d: %s (%s)\n", i+1, layer.Name, layer.Type)
	}
	return nil
}
