package transport

import (
	"errors"
	"fmt"

	"github.com/slack-lackey/maid-server/core"
)

// requestError reports a request that could not be built locally.
func requestError(message string, cause error, metadata map[string]any) error {
	if cause != nil {
		metadata = withCause(metadata, cause)
	}
	return core.BadInput(message, metadata)
}

// upstreamError reports a failed exchange with the remote host.
func upstreamError(message string, cause error, metadata map[string]any) error {
	if cause == nil {
		cause = errors.New(message)
	} else {
		cause = fmt.Errorf("%s: %w", message, cause)
	}
	return core.ExternalAPIError(cause, "http", metadata)
}

func withCause(metadata map[string]any, cause error) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for key, value := range metadata {
		out[key] = value
	}
	out["cause"] = cause.Error()
	return out
}
