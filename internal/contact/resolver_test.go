package contact

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/record"
)

const aliceAddress = "4Nd1mYWH1V7ZcpQ6GjzWZVRKpF4pS8zhMSRQ3jQaTq5x"

type lengthValidator struct{}

func (lengthValidator) IsValidAddress(address string) bool {
	return len(address) >= 32 && len(address) <= 44
}

type brokenStore struct {
	record.Store
}

func (brokenStore) FindContact(context.Context, string) (record.Contact, error) {
	return record.Contact{}, xerrors.New(xerrors.CodeStorageFailure, "disk on fire")
}

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	store := record.NewMemoryStore()
	_, err := store.AddContact(context.Background(), record.Contact{Name: "Alice", Address: aliceAddress})
	require.NoError(t, err)
	return NewResolver(store, lengthValidator{})
}

func TestResolvePassesAddressesThrough(t *testing.T) {
	r := NewResolver(brokenStore{}, lengthValidator{})
	got, err := r.Resolve(context.Background(), " "+aliceAddress+" ")
	require.NoError(t, err)
	assert.Equal(t, aliceAddress, got)
}

func TestResolveByName(t *testing.T) {
	r := newResolver(t)
	got, err := r.Resolve(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, aliceAddress, got)

	_, err = r.Resolve(context.Background(), "bob")
	require.Error(t, err)
	assert.Equal(t, CodeAddressNotFound, xerrors.CodeOf(err))
}

func TestRewriteSubstitutesAddress(t *testing.T) {
	r := newResolver(t)
	text, found, err := r.Rewrite(context.Background(), "send 2 sol to ALICE!")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Alice", found.Name)
	assert.Equal(t, "send 2 sol to "+aliceAddress+"!", text)
}

func TestRewriteLeavesOtherTextAlone(t *testing.T) {
	r := newResolver(t)
	for _, in := range []string{"balance", "send 2 to bob", "send 1 to " + aliceAddress} {
		text, found, err := r.Rewrite(context.Background(), in)
		require.NoError(t, err)
		assert.Nil(t, found)
		assert.Equal(t, in, text)
	}
}

func TestRewriteSurfacesStoreFailures(t *testing.T) {
	r := NewResolver(brokenStore{}, lengthValidator{})
	_, _, err := r.Rewrite(context.Background(), "send 2 to alice")
	require.Error(t, err)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeStorageFailure))
	assert.False(t, errors.Is(err, record.ErrContactNotFound))
}
