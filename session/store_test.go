package session

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/asdine/storm/v3"
	"github.com/justpiple/whatsapp-messaging-api/dao"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	db, err := storm.Open(filepath.Join(t.TempDir(), "storm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(dao.NewSessionDao(db), nil, nil)
}

func TestStore_WriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	creds := map[string]interface{}{
		"noiseKey": map[string]interface{}{
			"private": []byte{1, 2, 3},
			"public":  []byte{4, 5, 6},
		},
		"registrationId": float64(99),
	}

	require.NoError(t, store.Write(ctx, 1, "creds", creds))

	got, found, err := store.Read(ctx, 1, "creds")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, creds, got)
}

func TestStore_ReadAbsentIsNotAnError(t *testing.T) {
	store := newTestStore(t)

	value, found, err := store.Read(context.Background(), 1, "creds")
	require.NoError(t, err, "absent key signals first run, not a fault")
	require.False(t, found)
	require.Nil(t, value)
}

func TestStore_WriteNormalizesIdentifier(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, 1, "app-state-sync-key/AAAA", "v"))

	//both spellings address the same record
	got, found, err := store.Read(ctx, 1, "app-state-sync-key_AAAA")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", got)
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, 1, "session-628:1", "state"))
	require.NoError(t, store.Delete(ctx, 1, "session-628:1"))

	_, found, err := store.Read(ctx, 1, "session-628:1")
	require.NoError(t, err)
	require.False(t, found)

	//deleting again stays quiet
	require.NoError(t, store.Delete(ctx, 1, "session-628:1"))
}

func TestStore_ExecuteBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	//seed a couple of pre-keys
	sets := make([]Op, 0, 4)
	for i := 1; i <= 4; i++ {
		sets = append(sets, Op{
			Id:         fmt.Sprintf("set-%d", i),
			Kind:       OpSet,
			Type:       "pre-key",
			Identifier: fmt.Sprintf("%d", i),
			Value:      map[string]interface{}{"key": []byte{byte(i)}},
		})
	}
	store.Execute(ctx, 1, sets)

	results := store.Execute(ctx, 1, []Op{
		{Id: "1", Kind: OpGet, Type: "pre-key", Identifier: "1"},
		{Id: "2", Kind: OpGet, Type: "pre-key", Identifier: "2"},
		{Id: "missing", Kind: OpGet, Type: "pre-key", Identifier: "42"},
		{Id: "del", Kind: OpDelete, Type: "pre-key", Identifier: "3"},
	})

	require.Contains(t, results, "1")
	require.Contains(t, results, "2")
	require.NotContains(t, results, "missing", "absent reads are omitted from the result map")
	require.Equal(t, map[string]interface{}{"key": []byte{1}}, results["1"])

	_, found, err := store.Read(ctx, 1, "pre-key-3")
	require.NoError(t, err)
	require.False(t, found, "batched delete must apply")
}

func TestStore_ExecuteIsolatesFailures(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	//an unmarshalable value fails its own item only
	results := store.Execute(ctx, 1, []Op{
		{Id: "bad", Kind: OpSet, Type: "pre-key", Identifier: "1", Value: make(chan int)},
		{Id: "good", Kind: OpSet, Type: "pre-key", Identifier: "2", Value: "fine"},
	})
	require.Empty(t, results)

	_, found, err := store.Read(ctx, 1, "pre-key-2")
	require.NoError(t, err)
	require.True(t, found, "sibling write must survive a failed item")
}
