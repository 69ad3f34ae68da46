// Package reply holds the user-facing message templates and the emitter that
// delivers them ephemerally, to a channel, or through an interaction
// response URL.
package reply
