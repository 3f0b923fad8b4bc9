// Package memory offers an in-process keyword store.
package memory
