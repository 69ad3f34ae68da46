// Package server exposes the install pages and the signed Slack surfaces
// over HTTP.
package server
