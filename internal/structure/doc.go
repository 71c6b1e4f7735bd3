// Package structure turns the raw transcript stream into a living topic
// summary. An accumulator batches accepted text and fires a structuring call
// on a character-count or silence trigger; the LLM response replaces the
// topic tree wholesale, with the previous tree passed back as context.
package structure
