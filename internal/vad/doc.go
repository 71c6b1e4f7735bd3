// Package vad scores audio chunks for speech probability. The Detector
// interface isolates the scoring model from the segmentation state machine so
// an ONNX Silero runtime or an external scorer can replace the built-in
// energy detector without touching segmentation.
package vad
