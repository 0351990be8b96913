// Package notifications delivers short-lived, user-facing messages (toasts)
// produced by terminal state transitions in the billing flows.
//
// A Notifier is the only contract the billing packages depend on. The package
// ships a MemoryNotifier that records everything it receives (the natural
// test double for asserting "a notification of type X was shown"), a
// LogNotifier for headless deployments, a ChannelNotifier that fans toasts out
// to live UI connections, and a MultiNotifier that combines several of them on
// a best-effort basis.
package notifications
