package store

import (
	"context"
	"slices"
)

// writeChunk is the number of rows written between context checks.
const writeChunk = 500

// writeChunks hands items to write in chunks of writeChunk, stopping with
// ctx's error as soon as it is done. Callers run it inside their atomic
// unit so a stop part way through leaves nothing visible.
func writeChunks[T any](ctx context.Context, items []T, write func([]T) error) error {
	for chunk := range slices.Chunk(items, writeChunk) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := write(chunk); err != nil {
			return err
		}
	}
	return nil
}
