// Package notifier turns a post.Item into a transport.Notification and hands
// it to the configured Sender, one item at a time.
//
// Sends are paced by a token bucket and bounded by a per-send timeout. The
// service keeps a short in-memory history of what went out for the status
// surfaces.
package notifier
