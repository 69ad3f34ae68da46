// Package events publishes domain events about exported snippets.
package events
