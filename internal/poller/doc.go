// Package poller is the polling fallback for the push channel.
//
// While a task conversation is active the Poller ticks every ActiveInterval;
// otherwise every IdleInterval, when it only refreshes the unread recount.
// Ticks are paused while the view is hidden and never run after Stop.
//
// Each active tick fetches only the newest message. If its id matches the
// local LastMessageID nothing else happens. Otherwise the visible window is
// fetched and handed to conversation.Store.ReplaceWindow; messages that were
// not already known are reported to the unread aggregator.
package poller
