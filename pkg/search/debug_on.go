//go:build pepmatch_debug

package search

// Internal invariant violations panic in debug builds.
const debugChecks = true
