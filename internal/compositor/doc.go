// Package compositor recombines model outputs with the source image:
// Lab chroma transplant for colorization, alpha matting for background
// removal, and region blur and outline drawing for face anonymization.
//
// Every function allocates a new image; inputs are never modified.
package compositor
