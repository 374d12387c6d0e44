// Package imagebuf is the pixel-buffer layer under the inference engines.
//
// Every decoded or derived image is an *image.NRGBA with its origin at (0,0),
// row-major, non-premultiplied 8-bit RGBA. Functions never modify their
// inputs; each returns a freshly allocated image, except Paste and DrawRect
// which write into the destination the caller passes in.
//
// Resampling is bilinear throughout: imaging.Linear for colour images and
// x/image/draw.BiLinear for single-channel masks. Gaussian blur uses the
// imaging package unless the binary is built with the gocv tag, in which case
// OpenCV performs it.
package imagebuf
