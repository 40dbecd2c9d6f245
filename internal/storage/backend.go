// Package storage provides the uniform key→bytes store used by the
// credential vault and the schedule store (spec §4.7). Three variants are
// provided: an in-memory map for tests, a filesystem-rooted store, and a
// Postgres-backed store for durable multi-process deployments — the
// remote-object-store variant described in spec §4.7 is out of scope
// beyond this interface.
package storage

import "context"

// Backend is the narrow key→bytes store interface every credential-vault
// and schedule-store implementation is built on.
type Backend interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error) // Returns (nil, nil) when absent.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}
