package segment

import (
	"fmt"
	"strings"
)

// Variant describes the tensor contract of an encoder/decoder pair.
type Variant struct {
	Name string
	// InputSize is the square letterbox the encoder expects.
	InputSize int
	// Embeddings are the encoder outputs handed to the decoder under the
	// same names.
	Embeddings []string
	// Decoder tensor names.
	PointCoords  string
	PointLabels  string
	MaskInput    string
	HasMaskInput string
	// OrigSize, when set, names an input receiving the source size as
	// (height, width).
	OrigSize string
	// PaddingPoint appends a (0,0) point labelled -1 after the click.
	PaddingPoint bool
	Masks        string
	Scores       string
	// LowRes masks cover the whole letterboxed input at reduced resolution
	// and are cropped and upsampled to the source size.
	LowRes bool
}

// MobileSAM is the single-embedding SAM decoder that returns masks at
// source resolution.
var MobileSAM = Variant{
	Name:         "mobilesam",
	InputSize:    1024,
	Embeddings:   []string{"image_embeddings"},
	PointCoords:  "point_coords",
	PointLabels:  "point_labels",
	MaskInput:    "mask_input",
	HasMaskInput: "has_mask_input",
	OrigSize:     "orig_im_size",
	PaddingPoint: true,
	Masks:        "masks",
	Scores:       "iou_predictions",
}

// SAM2 forwards the image embedding plus two high resolution feature maps
// and returns 256x256 low resolution masks.
var SAM2 = Variant{
	Name:         "sam2",
	InputSize:    1024,
	Embeddings:   []string{"image_embed", "high_res_feats_0", "high_res_feats_1"},
	PointCoords:  "point_coords",
	PointLabels:  "point_labels",
	MaskInput:    "mask_input",
	HasMaskInput: "has_mask_input",
	Masks:        "masks",
	Scores:       "iou_predictions",
	LowRes:       true,
}

// ParseVariant resolves a variant by name.
func ParseVariant(name string) (Variant, error) {
	switch strings.ToLower(name) {
	case "mobilesam", "sam":
		return MobileSAM, nil
	case "sam2", "sam-2":
		return SAM2, nil
	}
	return Variant{}, fmt.Errorf("unknown segmentation model %q", name)
}

func (v Variant) maskInputSize() int64 {
	return int64(v.InputSize / 4)
}
