// Package jobs runs the two scheduler loops: the morning announcement and
// the post-session rotation advance. Both read their settings on every
// iteration, sleep on an injectable clock and record per-occurrence
// markers only after the action completed.
package jobs
