// Package state provides a lightweight FSM/session manager for Telegram bots.
// The session payload type is generic so bots can carry their own typed
// conversation data instead of an untyped bag.
package state
