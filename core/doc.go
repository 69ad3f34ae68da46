// Package core holds the tenant-scoped runtime of the maid service: configuration,
// the error envelope, credential and correlation stores, and the per-tenant
// client resolver. Provider and transport adapters depend on core, never the
// other way around.
package core
