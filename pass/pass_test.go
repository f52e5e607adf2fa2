package pass

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/cvs2git/config"
)

func testContext(t *testing.T) *Context {
	dir := t.TempDir()
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	cfg, err := config.Unmarshal(nil)
	require.NoError(t, err)
	return &Context{Config: cfg, Logger: l, WorkingDir: dir}
}

func TestManagerRunsPassesInOrder(t *testing.T) {
	ctx := testContext(t)
	m := NewManager(ctx)

	var order []string
	passes := []Pass{
		{
			Name:     "first",
			Produces: []string{"a.txt"},
			Run: func(ctx *Context, stats *Stats) error {
				order = append(order, "first")
				stats.Add("items", 3)
				return os.WriteFile(ctx.ArtifactPath("a.txt"), []byte("x"), 0644)
			},
		},
		{
			Name:     "second",
			Requires: []string{"a.txt"},
			Run: func(ctx *Context, stats *Stats) error {
				order = append(order, "second")
				return nil
			},
		},
	}
	require.NoError(t, m.Run(passes))
	assert.Equal(t, []string{"first", "second"}, order)
	assert.EqualValues(t, 3, m.Stats().Get("items"))
}

func TestManagerFailsOnMissingRequirement(t *testing.T) {
	ctx := testContext(t)
	m := NewManager(ctx)
	passes := []Pass{{
		Name:     "needs-input",
		Requires: []string{filepath.Join("does-not-exist.txt")},
		Run:      func(ctx *Context, stats *Stats) error { return nil },
	}}
	err := m.Run(passes)
	assert.Error(t, err)
}

func TestManagerFailsWhenProduceNotWritten(t *testing.T) {
	ctx := testContext(t)
	m := NewManager(ctx)
	passes := []Pass{{
		Name:     "liar",
		Produces: []string{"never-written.txt"},
		Run:      func(ctx *Context, stats *Stats) error { return nil },
	}}
	err := m.Run(passes)
	assert.Error(t, err)
}
