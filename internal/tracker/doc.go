// Package tracker defines the keyword, outcome and collaborator types shared by the
// refresh orchestrator, the provider adapters and the storage backends.
package tracker
