//go:build integration

package persist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tclog "github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/xenking/kart-catalog/internal/catalog"
	"github.com/xenking/kart-catalog/internal/domain/product"
)

type nopLogger struct{}

func (*nopLogger) Printf(string, ...any) {}

var _ tclog.Logger = (*nopLogger)(nil)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("catalog"),
		postgres.WithUsername("catalog"),
		postgres.WithPassword("catalog"),
		postgres.BasicWaitStrategies(),
		tc.WithLogger(&nopLogger{}),
	)
	require.NoError(t, err)
	tc.CleanupContainer(t, container)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgresMedium(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	m, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	testMedium(t, m)

	// Migrations are idempotent.
	require.NoError(t, RunMigrations(ctx, m.pool))
}

func TestPostgresMedium_KeepsRecordText(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	m, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	rec := `{"title":"Lamp", "id":7,"price":12.50}`
	p, err := product.DecodeRaw([]byte(rec))
	require.NoError(t, err)

	st := catalog.InitialState()
	st.RawProducts = []product.Product{p}
	st.Status = catalog.StatusSucceeded

	a := NewAdapter(m)
	require.NoError(t, a.Save(ctx, st))

	out, err := a.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Len(t, out.RawProducts, 1)
	assert.Equal(t, rec, string(out.RawProducts[0].Raw))
}

func TestPostgresMedium_SharedPool(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, RunMigrations(ctx, pool))

	m := NewPostgresMedium(pool)
	require.NoError(t, m.Put(ctx, DefaultKey, []byte(`{"version":1}`)))
	require.NoError(t, m.Close())

	// Closing a medium over a shared pool leaves the pool usable.
	require.NoError(t, pool.Ping(ctx))
	got, err := NewPostgresMedium(pool).Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1}`, string(got))
}
