// Package transcribe converts utterances to text through a staged retry
// cascade. Each phase decodes with progressively stricter parameters and the
// result passes quality gates plus a hallucination filter tuned for Japanese
// dictation before it is accepted.
package transcribe
