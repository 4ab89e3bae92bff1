//go:build !pepmatch_debug

package search

const debugChecks = false
