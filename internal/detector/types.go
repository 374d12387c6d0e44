// Package detector turns raw detection tensors into deduplicated regions.
package detector

import "image"

// Point is a keypoint in source image pixels.
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Landmarks are the five face keypoints, in model output order.
type Landmarks struct {
	LeftEye    Point `json:"left_eye"`
	RightEye   Point `json:"right_eye"`
	Nose       Point `json:"nose"`
	LeftMouth  Point `json:"left_mouth"`
	RightMouth Point `json:"right_mouth"`
}

func landmarksFrom(pts [5]Point) *Landmarks {
	return &Landmarks{
		LeftEye:    pts[0],
		RightEye:   pts[1],
		Nose:       pts[2],
		LeftMouth:  pts[3],
		RightMouth: pts[4],
	}
}

// Region is an axis-aligned detection in source image pixels.
type Region struct {
	X     int     `json:"x"`
	Y     int     `json:"y"`
	W     int     `json:"width"`
	H     int     `json:"height"`
	Score float32 `json:"score"`
	// Landmarks is set by schemes whose model predicts keypoints.
	Landmarks *Landmarks `json:"landmarks,omitempty"`
}

// Rect returns the region as an image rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Area returns region area, 0 for degenerate regions.
func (r Region) Area() int {
	if r.W <= 0 || r.H <= 0 {
		return 0
	}
	return r.W * r.H
}

// DetectionSet is the result of suppression, ordered by descending score.
type DetectionSet []Region

// Rects returns the rectangles of every region in order.
func (s DetectionSet) Rects() []image.Rectangle {
	rects := make([]image.Rectangle, len(s))
	for i, r := range s {
		rects[i] = r.Rect()
	}
	return rects
}
