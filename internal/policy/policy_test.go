package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinDefaultProfile(t *testing.T) {
	r, err := NewRegistry(context.Background(), "", nil)
	require.NoError(t, err)

	p := r.Default()
	assert.Equal(t, "default", p.Name)
	assert.Equal(t, 1, p.Version)
	assert.InDelta(t, 0.12, p.Safety.MaxVolumeIncreasePct, 1e-9)
	assert.InDelta(t, 0.20, p.Safety.MaxVolumeDecreasePct, 1e-9)
	assert.InDelta(t, 0.25, p.Safety.MaxDurationChangePct, 1e-9)
	assert.Equal(t, 20, p.Safety.MinSessionMinutes)
	assert.Equal(t, 240, p.Safety.MaxSessionMinutes)
	assert.Equal(t, []string{"conservative", "default"}, r.Names())
}

func TestOverrideBumpsVersion(t *testing.T) {
	inc := 0.10
	r, err := NewRegistry(context.Background(), "default", StaticOverrides(map[string]Override{
		"default": {MaxVolumeIncreasePct: &inc},
	}))
	require.NoError(t, err)

	p, err := r.Resolve("default")
	require.NoError(t, err)
	assert.InDelta(t, 0.10, p.Safety.MaxVolumeIncreasePct, 1e-9)
	assert.Equal(t, 2, p.Version)

	untouched, err := r.Resolve("conservative")
	require.NoError(t, err)
	assert.Equal(t, 1, untouched.Version)
}

func TestRefreshIsExplicit(t *testing.T) {
	current := map[string]Override{}
	source := func(context.Context) (map[string]Override, error) { return current, nil }
	r, err := NewRegistry(context.Background(), "", source)
	require.NoError(t, err)

	maxMin := 200
	current = map[string]Override{"default": {MaxSessionMinutes: &maxMin}}
	assert.Equal(t, 240, r.Default().Safety.MaxSessionMinutes, "overrides only land on Refresh")

	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, 200, r.Default().Safety.MaxSessionMinutes)
}

func TestRefreshKeepsPreviousOnError(t *testing.T) {
	fail := false
	source := func(context.Context) (map[string]Override, error) {
		if fail {
			return nil, errors.New("config unavailable")
		}
		return nil, nil
	}
	r, err := NewRegistry(context.Background(), "", source)
	require.NoError(t, err)

	fail = true
	require.Error(t, r.Refresh(context.Background()))
	assert.Equal(t, "default", r.Default().Name)
}

func TestInvalidOverridesRejected(t *testing.T) {
	bad := 1.5
	_, err := NewRegistry(context.Background(), "", StaticOverrides(map[string]Override{
		"default": {MaxVolumeIncreasePct: &bad},
	}))
	require.Error(t, err)

	_, err = NewRegistry(context.Background(), "", StaticOverrides(map[string]Override{
		"elite": {},
	}))
	assert.ErrorIs(t, err, ErrUnknownProfile)

	_, err = NewRegistry(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrUnknownProfile)
}
