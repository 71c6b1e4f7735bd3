// Package audio handles audio acquisition, buffering, and format conversion.
// It provides the fixed-size chunk stream the VAD consumes, the preroll ring
// buffer, WAV encoding/decoding for the transcription API, and interchangeable
// signal sources (microphone via ffmpeg, decoded audio files).
package audio
