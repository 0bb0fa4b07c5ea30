// Package memory provides in-process repositories with the same contracts as the MongoDB adapters.
// The exported *Err fields inject failures in tests.
package memory
