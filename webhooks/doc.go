// Package webhooks authenticates inbound chat platform requests.
//
// Every request body is checked against the workspace signing secret before it
// reaches a router. Timestamps outside the skew window are rejected to block
// replays of captured requests.
package webhooks
