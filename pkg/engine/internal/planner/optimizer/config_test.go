package optimizer

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfig(t *testing.T) {
	t.Run("flag defaults", func(t *testing.T) {
		var cfg Config
		fs := flag.NewFlagSet("test", flag.PanicOnError)
		cfg.RegisterFlagsWithPrefix("optimizer.", fs)
		require.NoError(t, fs.Parse(nil))
		require.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("flags", func(t *testing.T) {
		var cfg Config
		fs := flag.NewFlagSet("test", flag.PanicOnError)
		cfg.RegisterFlagsWithPrefix("optimizer.", fs)
		require.NoError(t, fs.Parse([]string{"-optimizer.eager", "-optimizer.max-iterations=3"}))
		require.True(t, cfg.Eager)
		require.Equal(t, 3, cfg.MaxIterations)
	})

	t.Run("yaml", func(t *testing.T) {
		cfg := DefaultConfig()
		err := yaml.Unmarshal([]byte("predicate_pushdown: false\nstreaming: true\nmax_iterations: 4\n"), &cfg)
		require.NoError(t, err)
		require.False(t, cfg.PredicatePushdown)
		require.True(t, cfg.Streaming)
		require.True(t, cfg.ProjectionPushdown)
		require.Equal(t, 4, cfg.MaxIterations)
	})
}
