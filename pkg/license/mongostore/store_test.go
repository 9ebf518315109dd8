package mongostore_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/licensekit/pkg/license"
	"github.com/dmitrymomot/licensekit/pkg/license/licensetest"
	"github.com/dmitrymomot/licensekit/pkg/license/mongostore"
	"github.com/dmitrymomot/licensekit/pkg/mongo"
)

// TestStore runs against the server named by MONGODB_TEST_URL.
func TestStore(t *testing.T) {
	url := os.Getenv("MONGODB_TEST_URL")
	if url == "" {
		t.Skip("MONGODB_TEST_URL not set")
	}
	ctx := context.Background()

	client, err := mongo.New(ctx, mongo.Config{ConnectionURL: url, RetryAttempts: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	require.NoError(t, mongo.Healthcheck(client)(ctx))

	db := client.Database("licensekit_test_" + uuid.NewString()[:8])
	t.Cleanup(func() { _ = db.Drop(context.Background()) })

	licensetest.RunStoreSuite(t, func(t *testing.T) license.Store {
		store := mongostore.New(db, "records_"+uuid.NewString()[:8])
		require.NoError(t, store.EnsureIndexes(ctx))
		return store
	})
}

func TestNew_NilDatabase(t *testing.T) {
	t.Parallel()
	require.Panics(t, func() { mongostore.New(nil, "") })
}
