// Package batch provides helpers for tools that act on several records at once:
// parsing parameters that accept a single id or a list, running the operation
// per item, and reporting partial failures in one result.
package batch
