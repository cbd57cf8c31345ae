package keyderiv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveAddressDeterministic(t *testing.T) {
	p, err := NewHDProvider("test master seed", 64)
	require.NoError(t, err)

	a1, err := p.DeriveAddress(7)
	require.NoError(t, err)
	a2, err := p.DeriveAddress(7)
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
}

func TestDeriveAddressDistinctPerIndex(t *testing.T) {
	p, err := NewHDProvider("test master seed", 64)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := int64(0); i < 50; i++ {
		addr, err := p.DeriveAddress(i)
		require.NoError(t, err)
		assert.False(t, seen[addr], "index %d produced a duplicate address", i)
		seen[addr] = true
	}
}

func TestDeriveAddressFormat(t *testing.T) {
	p, err := NewHDProvider("test master seed", 64)
	require.NoError(t, err)

	for i := int64(0); i < 20; i++ {
		addr, err := p.DeriveAddress(i)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(addr, "T"), "address %s should start with T", addr)
		assert.Equal(t, 34, len(addr), "address %s should be 34 characters", addr)
	}
}

func TestDeriveAddressSeedIsolation(t *testing.T) {
	p1, err := NewHDProvider("seed one", 64)
	require.NoError(t, err)
	p2, err := NewHDProvider("seed two", 64)
	require.NoError(t, err)

	a1, err := p1.DeriveAddress(0)
	require.NoError(t, err)
	a2, err := p2.DeriveAddress(0)
	require.NoError(t, err)

	assert.NotEqual(t, a1, a2)
}

func TestNewHDProviderRejectsEmptySeed(t *testing.T) {
	_, err := NewHDProvider("", 64)
	assert.Error(t, err)
}

func TestDeriveAddressRejectsNegativeIndex(t *testing.T) {
	p, err := NewHDProvider("test master seed", 64)
	require.NoError(t, err)

	_, err = p.DeriveAddress(-1)
	assert.Error(t, err)
}
