// Package snippet detects code snippets in chat traffic, asks the author
// whether to keep them, and exports confirmed snippets as gists.
//
// A detected snippet is parked in the correlation store under a fresh token.
// The prompt buttons carry only that token, and redeeming it is the single
// gate for export, so each detected snippet is exported at most once.
package snippet
