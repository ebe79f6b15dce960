package composables

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestIdentity(t *testing.T) {
	ctx := context.Background()

	_, err := UseTenantID(ctx)
	require.ErrorIs(t, err, ErrNoTenant)
	_, err = UseActor(WithActor(ctx, Actor{Name: "no id"}))
	require.ErrorIs(t, err, ErrNoActor)

	tenantID := uuid.New()
	ctx = WithActor(WithTenantID(ctx, tenantID), SystemActor)
	got, err := UseTenantID(ctx)
	require.NoError(t, err)
	require.Equal(t, tenantID, got)
	actor, err := UseActor(ctx)
	require.NoError(t, err)
	require.Equal(t, "system", actor.Name)
}

func TestRequestScopedValues(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, UseRequestID(ctx))
	require.NotNil(t, UseLogger(ctx))
	require.Equal(t, "req-1", UseRequestID(WithRequestID(ctx, "req-1")))
}

func TestUseTx_WithoutPool(t *testing.T) {
	_, err := UseTx(context.Background())
	require.ErrorIs(t, err, ErrNoPool)
	require.ErrorIs(t, InTx(context.Background(), func(context.Context) error { return nil }), ErrNoPool)
}
