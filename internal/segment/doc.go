// Package segment turns a scored chunk stream into discrete utterances.
// A four-state hysteresis machine confirms speech onsets against a high
// threshold, holds segments open against a lower one, and pads each utterance
// with preroll audio so onset consonants survive the cut.
package segment
