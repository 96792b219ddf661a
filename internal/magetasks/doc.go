// Package magetasks holds the build, test and lint tasks behind the
// Magefile, grouped the way the Magefile exposes them.
package magetasks
