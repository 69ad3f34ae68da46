// Package inbound turns verified chat platform requests into router calls.
//
// The Dispatcher verifies, decodes and acknowledges; the EventRouter and
// ActionRouter then run handlers in the background so a slow export never
// holds the acknowledgement.
package inbound
