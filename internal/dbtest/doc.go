// Package dbtest starts throwaway database containers for tests.
//
// Containers are skipped under -short. Run with -dbtest.inspect to keep a
// failed test's container alive until Ctrl+C, so the graph can be browsed.
package dbtest
