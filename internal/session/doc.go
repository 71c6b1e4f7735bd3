// Package session aggregates the durable record of one dictation run: the
// accepted transcript segments with their timing and confidence metadata, the
// error ledger, the summary history, and JSON persistence at shutdown.
package session
