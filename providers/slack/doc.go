// Package slack adapts the Slack Web API, Events API and interactivity
// payloads to the provider-neutral contracts in core and inbound.
package slack
