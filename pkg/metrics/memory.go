package metrics

import "sync"

// Sample é um ponto registrado pelo MemoryProvider.
type Sample struct {
	Type  string
	Name  string
	Value float64
	Tags  []string
}

// MemoryProvider guarda as métricas em memória. Usado em testes e no modo local.
type MemoryProvider struct {
	mu      sync.Mutex
	samples []Sample
}

func (m *MemoryProvider) Count(name string, value float64, tags []string) error {
	return m.add("count", name, value, tags)
}

func (m *MemoryProvider) Gauge(name string, value float64, tags []string) error {
	return m.add("gauge", name, value, tags)
}

func (m *MemoryProvider) Histogram(name string, value float64, tags []string) error {
	return m.add("histogram", name, value, tags)
}

func (m *MemoryProvider) add(typ, name string, value float64, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, Sample{Type: typ, Name: name, Value: value, Tags: tags})
	return nil
}

// Samples devolve uma cópia do que foi registrado.
func (m *MemoryProvider) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sample(nil), m.samples...)
}

// Total soma os valores de uma métrica.
func (m *MemoryProvider) Total(name string) float64 {
	var total float64
	for _, s := range m.Samples() {
		if s.Name == name {
			total += s.Value
		}
	}
	return total
}
