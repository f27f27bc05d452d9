// Package mailbox relays bus traffic between two processes that share a
// directory, without any network listener.
//
// Each process owns an inbox: an append-only JSONL (JSON Lines) file that
// peers write into and only the owner reads.
//
//	{dir}/mailbox/
//	    {name}/index.jsonl -- messages addressed to process {name}
//
// # Main Types
//
//   - [Message]: one inbox line with sender, recipient, type and body
//   - [Store]: low-level file storage with atomic appends and offset reads
//   - [Messenger]: a messenger.Messenger for one (self, peer) pair
//
// # Basic Usage
//
//	m, err := mailbox.Open(sharedDir, "editor", "preview")
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//	if err := bus.Connect(m); err != nil {
//	    return err
//	}
//
// A Messenger watches its inbox with fsnotify and also re-reads it on a poll
// interval, since notifications are not delivered on every filesystem. On
// Close it appends a shutdown notice to the peer's inbox; the peer's
// Messenger then shuts down as well.
//
// # Thread Safety
//
// [Store] and [Messenger] are safe for concurrent use within a single
// process. File writes use O_APPEND for POSIX atomicity on small JSONL lines.
package mailbox
