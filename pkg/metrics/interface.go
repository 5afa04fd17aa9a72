package metrics

// Provider define o contrato para envio de métricas.
// Isso permite trocar Datadog por Prometheus ou Logging sem alterar a lógica de negócio.
type Provider interface {
	Count(name string, value float64, tags []string) error
	Gauge(name string, value float64, tags []string) error
	Histogram(name string, value float64, tags []string) error
}

// Nomes das métricas emitidas pelo pipeline (o namespace é aplicado pelo provider).
const (
	DocumentsClaimed    = "documents.claimed"
	DocumentsCompleted  = "documents.completed"
	DocumentsFailed     = "documents.failed"
	DocumentsReleased   = "documents.released"
	ClaimConflicts      = "claim.conflicts"
	StageDuration       = "stage.duration_ms"
	ChunksProduced      = "chunks.produced"
	VectorsLoaded       = "vectors.loaded"
	PendingDocuments    = "documents.pending"
	DocumentsRegistered = "documents.registered"
	IngestSkipped       = "ingest.skipped"
)
