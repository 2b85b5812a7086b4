package device

import (
	"testing"

	"github.com/nasa-jpl/stepperctl/stepper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type named string

func (n named) Name() string { return string(n) }

func TestRegistryLookupOrder(t *testing.T) {
	r, err := NewRegistry(named("dev0"), named("dev1"), named("x"))
	require.NoError(t, err)
	var got []string
	for i := 0; ; i++ {
		d, ok := r.Lookup(i)
		if !ok {
			break
		}
		got = append(got, d.Name())
	}
	assert.Equal(t, []string{"dev0", "dev1", "x"}, got)
	assert.Equal(t, got, r.Names())
	assert.Equal(t, 3, r.Len())
	_, ok := r.Lookup(-1)
	assert.False(t, ok)
}

func TestRegistryGetExactMatch(t *testing.T) {
	r, err := NewRegistry(named("dev0"), named("dev10"))
	require.NoError(t, err)

	d, err := r.Get("dev10")
	require.NoError(t, err)
	assert.Equal(t, "dev10", d.Name())

	for _, name := range []string{"dev1", "DEV0", "dev0 ", ""} {
		_, err = r.Get(name)
		assert.ErrorIs(t, err, stepper.ErrNoDevice, "%q", name)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(named("a"), named("a"))
	assert.Error(t, err)
	_, err = NewRegistry(named(""))
	assert.ErrorIs(t, err, stepper.ErrInvalid)
}
