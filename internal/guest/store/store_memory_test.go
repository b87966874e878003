package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventgate/internal/guest/models"
	"eventgate/pkg/platform/sentinel"
)

func TestInMemoryStoreOperations(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	_, err := store.FindByToken(ctx, "T100")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	profile := &models.Profile{Token: "T100", Name: models.Name{FirstName: "Asha"}, Age: 31}
	require.NoError(t, store.Save(ctx, profile))

	fetched, err := store.FindByToken(ctx, "T100")
	require.NoError(t, err)
	assert.Equal(t, "Asha", fetched.Name.FirstName)

	// Copy integrity
	fetched.Name.FirstName = "Changed"
	again, err := store.FindByToken(ctx, "T100")
	require.NoError(t, err)
	assert.Equal(t, "Asha", again.Name.FirstName)

	// Save replaces
	profile.Age = 32
	require.NoError(t, store.Save(ctx, profile))
	again, err = store.FindByToken(ctx, "T100")
	require.NoError(t, err)
	assert.Equal(t, 32, again.Age)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
