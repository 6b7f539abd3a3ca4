package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docprobe/internal/checkpoint"
)

func TestStoreSaveLoadIsolatesCopies(t *testing.T) {
	t.Parallel()

	store := NewStore()
	cp := checkpoint.New("run", checkpoint.ModeLinear)
	cp.MarkFound(checkpoint.Record{ID: "EFTA00000001.mp4"})
	require.NoError(t, store.Save(context.Background(), cp))

	cp.MarkFound(checkpoint.Record{ID: "EFTA00000002.mp4"})
	loaded, err := store.Load(context.Background(), "run")
	require.NoError(t, err)
	require.Len(t, loaded.Found, 1)
	require.Equal(t, 1, store.Saves())
}

func TestStoreLoadMissing(t *testing.T) {
	t.Parallel()

	_, err := NewStore().Load(context.Background(), "missing")
	require.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestStoreDelete(t *testing.T) {
	t.Parallel()

	store := NewStore()
	require.NoError(t, store.Save(context.Background(), checkpoint.New("run", checkpoint.ModeDownload)))
	require.NoError(t, store.Delete(context.Background(), "run"))
	_, err := store.Load(context.Background(), "run")
	require.ErrorIs(t, err, checkpoint.ErrNotFound)
	require.Error(t, store.Save(context.Background(), &checkpoint.Checkpoint{}))
}
