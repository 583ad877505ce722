package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/vorewrite/internal/refine"
	"github.com/valpere/vorewrite/internal/task"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	require.NoError(t, BindEnv(v))
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, task.MapToVO, cfg.Kind())
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 2, cfg.Batch.Workers)
	assert.Equal(t, 3, cfg.LLM.Retry.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.LLM.Retry.BaseDelay)

	rc, err := cfg.RefineConfig()
	require.NoError(t, err)
	assert.Equal(t, refine.ModePerUnit, rc.Mode)
	assert.Equal(t, 3, rc.MaxIterations)
	require.NotNil(t, rc.LineBudgetOffset)
	assert.Equal(t, 1, *rc.LineBudgetOffset)
	require.NotNil(t, rc.SkipPredicate)
	assert.True(t, rc.SkipPredicate("int x = 1;"))
	assert.False(t, rc.SkipPredicate(`map.get("A")`))
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vorewrite.yaml")
	yaml := `task: legacy-api-modernization
conversion:
  mode: line
  max_iterations: 5
  line_limit: false
  enhance_patch: true
llm:
  provider: openrouter
  model: qwen/qwen-2.5-coder-32b-instruct
batch:
  workers: 8
  timeout: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	v := newViper(t)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, task.LegacyAPIModernization, cfg.Kind())
	assert.Equal(t, 30*time.Second, cfg.Batch.Timeout)
	assert.Equal(t, 8, cfg.Batch.Workers)

	rc, err := cfg.RefineConfig()
	require.NoError(t, err)
	assert.Equal(t, refine.ModePerLine, rc.Mode)
	assert.Equal(t, 5, rc.MaxIterations)
	assert.Nil(t, rc.LineBudgetOffset)
	assert.True(t, rc.ApplyAsPatch, "enhancement implies patch replay")
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("VOREWRITE_CONVERSION_MAX_ITERATIONS", "7")
	t.Setenv("OPENROUTER_API_KEY", "sk-test")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Conversion.MaxIterations)
	assert.Equal(t, "sk-test", cfg.LLM.OpenRouterKey)
}

func TestValidate_CollectsErrors(t *testing.T) {
	v := newViper(t)
	v.Set("task", "translate")
	v.Set("conversion.max_iterations", 0)
	v.Set("llm.provider", "systran")

	_, err := Load(v)
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"unknown task", "max iterations", "unknown llm provider"} {
		assert.True(t, strings.Contains(msg, want), "missing %q in %q", want, msg)
	}
}

func TestReadVOClass(t *testing.T) {
	cfg := &Config{}
	text, err := cfg.ReadVOClass()
	require.NoError(t, err)
	assert.Empty(t, text)

	path := filepath.Join(t.TempDir(), "UserVO.java")
	require.NoError(t, os.WriteFile(path, []byte("class UserVO {}"), 0o644))
	cfg.Context.VOClass = path
	text, err = cfg.ReadVOClass()
	require.NoError(t, err)
	assert.Equal(t, "class UserVO {}", text)

	cfg.Context.VOClass = path + ".missing"
	_, err = cfg.ReadVOClass()
	assert.Error(t, err)
}
