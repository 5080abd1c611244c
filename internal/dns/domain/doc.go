// Package domain holds the value types shared by the interception core:
// block rules and decisions, packet classifications and the statistics
// derived from the blocked-query count. Nothing in here does I/O.
package domain
