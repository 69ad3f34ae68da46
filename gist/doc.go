// Package gist builds gist requests from confirmed snippets and talks to the
// hosting API that stores them.
package gist
