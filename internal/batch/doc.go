// Package batch runs one operation over many inputs and reports per-item
// outcomes, so a command given several files can finish the rest after one
// fails and still exit with an error.
package batch
