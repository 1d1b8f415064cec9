// Package notify delivers outbound chat messages with a shared rate limit
// and bounded retries. Sends are synchronous so callers can record markers
// only after a message actually went out.
package notify
