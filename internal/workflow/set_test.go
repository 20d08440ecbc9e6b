package workflow

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bryanchriswhite/captain/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSet(t *testing.T) {
	defer goleak.VerifyNone(t)

	te := newTestEnv(t)
	m, err := config.NewManager(filepath.Join(t.TempDir(), "options.yaml"))
	require.NoError(t, err)
	require.NoError(t, m.SetWorkflow(stillWorkflow("/out/{8}")))
	require.NoError(t, m.SetWorkflow(motionWorkflow("/out/rec.{8}")))
	te.Options = m

	s := NewSet(te.Environment)

	w, err := s.Get("still")
	require.NoError(t, err)
	again, err := s.Get("still")
	require.NoError(t, err)
	assert.Same(t, w, again)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, config.ErrWorkflowNotFound)

	motion, err := s.Get("motion")
	require.NoError(t, err)
	require.NoError(t, motion.Start(context.Background(), "desktop"))
	assert.Equal(t, AwaitingStartIntent, s.Phase("motion"))
	assert.Equal(t, []string{"motion", "still"}, s.Active())

	require.NoError(t, m.RemoveWorkflow("still"))
	require.NoError(t, m.RemoveWorkflow("motion"))
	s.Sync(m.Get())

	// running workflows survive until they finish
	assert.Equal(t, []string{"motion"}, s.Active())

	require.NoError(t, s.Close())
	assert.Empty(t, s.Active())
	assert.Equal(t, Uninitialized, s.Phase("motion"))
}
