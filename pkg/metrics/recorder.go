package metrics

import (
	"time"

	"github.com/rs/zerolog"
)

// Recorder encapsula o Provider com os nomes e tags do pipeline.
// Falhas no envio são logadas em debug e nunca interrompem o processamento.
type Recorder struct {
	provider Provider
	tags     []string
	log      zerolog.Logger
}

// NewRecorder cria um Recorder. Provider nil descarta tudo.
func NewRecorder(provider Provider, baseTags []string, log zerolog.Logger) *Recorder {
	return &Recorder{
		provider: provider,
		tags:     baseTags,
		log:      log,
	}
}

func (r *Recorder) Count(name string, value float64, extra ...string) {
	if r == nil || r.provider == nil {
		return
	}
	if err := r.provider.Count(name, value, r.withTags(extra)); err != nil {
		r.log.Debug().Err(err).Str("metric", name).Msg("falha ao enviar métrica")
	}
}

func (r *Recorder) Gauge(name string, value float64, extra ...string) {
	if r == nil || r.provider == nil {
		return
	}
	if err := r.provider.Gauge(name, value, r.withTags(extra)); err != nil {
		r.log.Debug().Err(err).Str("metric", name).Msg("falha ao enviar métrica")
	}
}

// Duration registra um histograma em milissegundos.
func (r *Recorder) Duration(name string, d time.Duration, extra ...string) {
	if r == nil || r.provider == nil {
		return
	}
	ms := float64(d) / float64(time.Millisecond)
	if err := r.provider.Histogram(name, ms, r.withTags(extra)); err != nil {
		r.log.Debug().Err(err).Str("metric", name).Msg("falha ao enviar métrica")
	}
}

func (r *Recorder) withTags(extra []string) []string {
	if len(extra) == 0 {
		return r.tags
	}
	tags := make([]string, 0, len(r.tags)+len(extra))
	tags = append(tags, r.tags...)
	return append(tags, extra...)
}
