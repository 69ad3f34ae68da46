// Package transport is the outbound HTTP client used for third-party REST
// calls. Failures carry the service error envelope.
package transport
