// Package pipeline wires the dictation lanes together: a capture lane that
// reads and segments audio at device pace, a transcription lane that decodes
// one utterance at a time, and a structuring lane driven by accumulation
// triggers. The capture lane never blocks on the others; utterances queue in
// a bounded channel and are dropped with a log entry if transcription falls
// too far behind.
package pipeline
