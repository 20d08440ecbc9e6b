package extension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeter func() string

func TestRegistry_LookupAndEnumerate(t *testing.T) {
	r := NewRegistry[greeter]("greeter")
	require.NoError(t, r.Register("b", "Bee", func() string { return "bzz" }))
	require.NoError(t, r.Register("a", "", func() string { return "ah" }))

	f, err := r.Lookup("b")
	require.NoError(t, err)
	assert.Equal(t, "bzz", f())

	assert.Equal(t, []Descriptor{
		{Name: "b", DisplayName: "Bee"},
		{Name: "a", DisplayName: "a"},
	}, r.Enumerate())
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry[greeter]("greeter")

	_, err := r.Lookup("missing")
	require.ErrorIs(t, err, ErrNotRegistered)
	assert.Contains(t, err.Error(), `greeter "missing"`)
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry[greeter]("greeter")
	r.MustRegister("a", "A", func() string { return "" })

	err := r.Register("a", "A", func() string { return "" })
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Panics(t, func() { r.MustRegister("a", "A", func() string { return "" }) })
}

func TestOptions_Decode(t *testing.T) {
	var out struct {
		Quality int    `mapstructure:"quality"`
		Name    string `mapstructure:"name"`
	}
	require.NoError(t, Options{"quality": "75", "name": "x"}.Decode(&out))
	assert.Equal(t, 75, out.Quality)
	assert.Equal(t, "x", out.Name)

	// empty options leave defaults untouched
	out.Quality = 90
	require.NoError(t, Options(nil).Decode(&out))
	assert.Equal(t, 90, out.Quality)

	require.Error(t, Options{"quality": "high"}.Decode(&out))
}
