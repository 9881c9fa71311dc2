// Package session holds the editing state of one loaded capture.
//
// A Session owns the store, the active skeleton and its rigid pairs, and the
// outlier mask derived from them. Deletions, repairs, filters and restores
// go through the session so the mask is recomputed after each edit and the
// edit is appended to the history and, when a Recorder is set, persisted.
package session
