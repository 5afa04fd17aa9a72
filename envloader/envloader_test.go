package envloader

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	type Config struct {
		Table     string  `env:"TEST_TABLE" envDefault:"doc-control"`
		BatchSize int32   `env:"TEST_BATCH" envDefault:"10"`
		Release   bool    `env:"TEST_RELEASE" envDefault:"true"`
		Ratio     float64 `env:"TEST_RATIO" envDefault:"0.5"`
		MaxBytes  uint64  `env:"TEST_MAX_BYTES" envDefault:"1048576"`
	}

	cfg := &Config{}
	require.NoError(t, Load(cfg))

	assert.Equal(t, "doc-control", cfg.Table)
	assert.Equal(t, int32(10), cfg.BatchSize)
	assert.True(t, cfg.Release)
	assert.Equal(t, 0.5, cfg.Ratio)
	assert.Equal(t, uint64(1048576), cfg.MaxBytes)
}

func TestLoad_EnvironmentOverridesDefault(t *testing.T) {
	type Config struct {
		Table string `env:"TEST_TABLE" envDefault:"doc-control"`
	}
	t.Setenv("TEST_TABLE", "other-table")

	cfg := &Config{}
	require.NoError(t, Load(cfg))
	assert.Equal(t, "other-table", cfg.Table)
}

func TestLoad_DurationAndSlice(t *testing.T) {
	type Config struct {
		Poll       time.Duration `env:"TEST_POLL" envDefault:"10s"`
		Step       time.Duration `env:"TEST_STEP"`
		Extensions []string      `env:"TEST_EXTS" envDefault:".pdf"`
	}
	t.Setenv("TEST_STEP", "250ms")
	t.Setenv("TEST_EXTS", ".pdf, .md,,.txt")

	cfg := &Config{}
	require.NoError(t, Load(cfg))

	assert.Equal(t, 10*time.Second, cfg.Poll)
	assert.Equal(t, 250*time.Millisecond, cfg.Step)
	assert.Equal(t, []string{".pdf", ".md", ".txt"}, cfg.Extensions)
}

func TestOverride_KeepsExistingValues(t *testing.T) {
	type Config struct {
		Table  string `env:"TEST_TABLE" envDefault:"doc-control"`
		Bucket string `env:"TEST_BUCKET" envDefault:"default-bucket"`
	}
	t.Setenv("TEST_BUCKET", "from-env")

	cfg := &Config{Table: "from-yaml", Bucket: "from-yaml"}
	require.NoError(t, Override(cfg))

	// Sem variável definida o valor do arquivo é mantido, mesmo havendo envDefault
	assert.Equal(t, "from-yaml", cfg.Table)
	assert.Equal(t, "from-env", cfg.Bucket)
}

func TestLoad_NestedStructs(t *testing.T) {
	type Store struct {
		Provider string `env:"TEST_PROVIDER" envDefault:"pgvector"`
	}
	type Orchestrator struct {
		Workspace string `env:"TEST_WORKSPACE" envDefault:"/tmp/docpipe"`
	}
	type Config struct {
		Store        Store
		Orchestrator *Orchestrator
		Untagged     string
	}
	t.Setenv("TEST_PROVIDER", "chromem")

	cfg := &Config{Untagged: "original"}
	require.NoError(t, Load(cfg))

	assert.Equal(t, "chromem", cfg.Store.Provider)
	require.NotNil(t, cfg.Orchestrator)
	assert.Equal(t, "/tmp/docpipe", cfg.Orchestrator.Workspace)
	assert.Equal(t, "original", cfg.Untagged)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("not a pointer", func(t *testing.T) {
		var cfg string
		err := Load(cfg)
		var invalid *InvalidConfigError
		require.ErrorAs(t, err, &invalid)
		assert.Contains(t, err.Error(), "pointer to struct")
	})

	t.Run("pointer to non struct", func(t *testing.T) {
		var n int
		err := Load(&n)
		assert.Contains(t, err.Error(), "got pointer to int")
	})

	t.Run("conversion", func(t *testing.T) {
		type Config struct {
			Port int `env:"TEST_PORT" envDefault:"not-a-number"`
		}
		err := Load(&Config{})
		var fieldErr *FieldError
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, "Port", fieldErr.FieldName)
		var numErr *strconv.NumError
		assert.True(t, errors.As(err, &numErr))
	})

	t.Run("unsupported", func(t *testing.T) {
		type Config struct {
			Tags map[string]string `env:"TEST_TAGS" envDefault:"a=b"`
		}
		err := Load(&Config{})
		var unsupported *UnsupportedTypeError
		assert.ErrorAs(t, err, &unsupported)
	})
}

func TestMustLoad(t *testing.T) {
	type Config struct {
		Port string `env:"TEST_PORT" envDefault:"8080"`
	}

	cfg := &Config{}
	assert.NotPanics(t, func() { MustLoad(cfg) })
	assert.Equal(t, "8080", cfg.Port)
	assert.Panics(t, func() { MustLoad("not-a-pointer") })
}
