// Package security seals workspace access tokens before they are persisted.
package security
