package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/raywall/fast-doc-pipeline/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Configure inicializa o logger global baseando-se na configuração do YAML.
func Configure(cfg config.LoggingConf) zerolog.Logger {
	return configure(cfg, os.Stdout)
}

func configure(cfg config.LoggingConf, out io.Writer) zerolog.Logger {
	// Define o nível de log (default: info)
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Define o output (JSON para produção, Console "bonito" para local se solicitado)
	output := out
	if !cfg.Enabled {
		output = io.Discard
	} else if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Logger()

	// Bibliotecas que usam log.Ctx sem logger no contexto caem no global
	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger

	return logger
}

// Component devolve um logger filho identificado pelo nome do componente.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
