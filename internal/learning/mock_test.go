package learning

import (
	"context"
	"errors"

	"github.com/basarometer/sourcectl/internal/patterns"
)

// flakyStore fails Deactivate for the listed ids and delegates everything
// else to an in-memory store.
type flakyStore struct {
	*patterns.MemoryStore
	failDeactivate map[string]bool
}

func (f *flakyStore) Deactivate(ctx context.Context, id string) (bool, error) {
	if f.failDeactivate[id] {
		return false, errors.New("connection reset by peer")
	}
	return f.MemoryStore.Deactivate(ctx, id)
}
