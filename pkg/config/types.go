package config

import "time"

// Config representa a estrutura raiz do arquivo YAML do pipeline.
type Config struct {
	Version      string           `yaml:"version"`
	Service      ServiceConf      `yaml:"service"`
	Logging      LoggingConf      `yaml:"logging"`
	Metrics      MetricsConf      `yaml:"metrics"`
	AWS          AWSConf          `yaml:"aws"`
	ControlTable ControlTableConf `yaml:"control_table"`
	Source       SourceConf       `yaml:"source"`
	Orchestrator OrchestratorConf `yaml:"orchestrator"`
	Chunking     ChunkingConf     `yaml:"chunking"`
	Enrichment   EnrichmentConf   `yaml:"enrichment"`
	Embedding    EmbeddingConf    `yaml:"embedding"`
	VectorStore  VectorStoreConf  `yaml:"vector_store"`
}

// ServiceConf contém os metadados e configurações de runtime do serviço.
type ServiceConf struct {
	Name       string `yaml:"name" env:"SERVICE_NAME" envDefault:"doc-pipeline" validate:"required,hostname_rfc1123"`
	Runtime    string `yaml:"runtime" env:"SERVICE_RUNTIME" envDefault:"local" validate:"required,oneof=local ecs eks lambda"`
	InstanceID string `yaml:"instance_id" env:"INSTANCE_ID"` // vazio: hostname + uuid
	AdminPort  int    `yaml:"admin_port" env:"ADMIN_PORT" envDefault:"8080" validate:"gte=0,lte=65535"`
}

type LoggingConf struct {
	Enabled bool   `yaml:"enabled" env:"LOG_ENABLED" envDefault:"true"`
	Level   string `yaml:"level" env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	Format  string `yaml:"format" env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json console"`
}

type MetricsConf struct {
	Datadog DatadogConf `yaml:"datadog"`
}

type DatadogConf struct {
	Enabled   bool     `yaml:"enabled" env:"DD_ENABLED"`
	Addr      string   `yaml:"addr" env:"DD_AGENT_HOST" validate:"required_if=Enabled true"`
	Namespace string   `yaml:"namespace" env:"DD_NAMESPACE" envDefault:"docpipe."`
	Tags      []string `yaml:"tags" env:"DD_TAGS"`
}

// AWSConf permite sobrescrever região e endpoint (LocalStack, DynamoDB local).
type AWSConf struct {
	Region   string `yaml:"region" env:"AWS_REGION" envDefault:"us-east-1"`
	Endpoint string `yaml:"endpoint" env:"AWS_ENDPOINT_URL"`
}

type ControlTableConf struct {
	TableName   string `yaml:"table_name" env:"CONTROL_TABLE_NAME" envDefault:"document-control" validate:"required"`
	StatusIndex string `yaml:"status_index" env:"CONTROL_STATUS_INDEX" envDefault:"status-created_at-index" validate:"required"`
	TTLDays     int    `yaml:"ttl_days" env:"CONTROL_TTL_DAYS" validate:"gte=0"` // 0 desabilita
}

type SourceConf struct {
	Bucket            string   `yaml:"bucket" env:"SOURCE_BUCKET"`
	Prefix            string   `yaml:"prefix" env:"SOURCE_PREFIX"`
	AllowedExtensions []string `yaml:"allowed_extensions" env:"SOURCE_ALLOWED_EXTENSIONS" envDefault:".pdf,.md,.markdown,.txt" validate:"min=1,dive,startswith=."`
	MaxSizeBytes      int64    `yaml:"max_size_bytes" env:"SOURCE_MAX_SIZE_BYTES" envDefault:"104857600" validate:"gte=0"`
}

type OrchestratorConf struct {
	PollInterval      time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL" envDefault:"10s" validate:"gt=0"`
	SleepStep         time.Duration `yaml:"sleep_step" env:"SLEEP_STEP" envDefault:"1s" validate:"gt=0"`
	BatchSize         int32         `yaml:"batch_size" env:"POLL_BATCH_SIZE" envDefault:"10" validate:"gte=1,lte=100"`
	StageTimeout      time.Duration `yaml:"stage_timeout" env:"STAGE_TIMEOUT" envDefault:"15m" validate:"gte=0"`
	ShutdownGrace     time.Duration `yaml:"shutdown_grace" env:"SHUTDOWN_GRACE" envDefault:"30s" validate:"gte=0"`
	WorkspaceDir      string        `yaml:"workspace_dir" env:"WORKSPACE_DIR" envDefault:"/tmp/docpipe" validate:"required"`
	WakeQueueURL      string        `yaml:"wake_queue_url" env:"WAKE_QUEUE_URL" validate:"omitempty,url"`
	ReleaseOnShutdown bool          `yaml:"release_on_shutdown" env:"RELEASE_ON_SHUTDOWN" envDefault:"true"`
}

type ChunkingConf struct {
	Strategy string `yaml:"strategy" env:"CHUNK_STRATEGY" envDefault:"sentence" validate:"oneof=fixed sentence section"`
	Size     int    `yaml:"size" env:"CHUNK_SIZE" envDefault:"300" validate:"gte=1"`
	Overlap  int    `yaml:"overlap" env:"CHUNK_OVERLAP" envDefault:"50" validate:"gte=0"`
	MinSize  int    `yaml:"min_size" env:"CHUNK_MIN_SIZE" envDefault:"40" validate:"gte=0"`
}

type EnrichmentConf struct {
	ContextWindow int            `yaml:"context_window" env:"ENRICH_CONTEXT_WINDOW" envDefault:"1" validate:"gte=0,lte=5"`
	Keywords      int            `yaml:"keywords" env:"ENRICH_KEYWORDS" envDefault:"5" validate:"gte=0"`
	Filter        string         `yaml:"filter" env:"ENRICH_FILTER"` // expressão CEL; vazio mantém todos os chunks
	Metadata      []MetadataRule `yaml:"metadata" validate:"dive"`
}

// MetadataRule calcula um campo extra de metadados por chunk via CEL. Quando
// Condition é falsa usa ElseValue; sem ElseValue o campo não é gravado.
type MetadataRule struct {
	Name      string `yaml:"name" validate:"required"`
	Target    string `yaml:"target" validate:"required"`
	Condition string `yaml:"condition"`
	Value     string `yaml:"value" validate:"required"`
	ElseValue string `yaml:"else_value"`
}

type EmbeddingConf struct {
	Provider    string        `yaml:"provider" env:"EMBEDDING_PROVIDER" envDefault:"openai" validate:"oneof=openai bedrock"`
	Model       string        `yaml:"model" env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small" validate:"required"`
	Endpoint    string        `yaml:"endpoint" env:"EMBEDDING_ENDPOINT" envDefault:"https://api.openai.com" validate:"omitempty,url"`
	APIKey      string        `yaml:"api_key" env:"EMBEDDING_API_KEY"`
	Dimension   int           `yaml:"dimension" env:"EMBEDDING_DIMENSION" envDefault:"1536" validate:"gte=1"`
	BatchSize   int           `yaml:"batch_size" env:"EMBEDDING_BATCH_SIZE" envDefault:"64" validate:"gte=1"`
	Concurrency int           `yaml:"concurrency" env:"EMBEDDING_CONCURRENCY" envDefault:"2" validate:"gte=1"`
	Timeout     time.Duration `yaml:"timeout" env:"EMBEDDING_TIMEOUT" envDefault:"60s" validate:"gt=0"`
	Cache       CacheConf     `yaml:"cache"`
}

type CacheConf struct {
	Enabled  bool          `yaml:"enabled" env:"EMBEDDING_CACHE_ENABLED"`
	Addr     string        `yaml:"addr" env:"REDIS_ADDR" envDefault:"localhost:6379" validate:"required_if=Enabled true"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" env:"EMBEDDING_CACHE_TTL" envDefault:"168h"`
}

type VectorStoreConf struct {
	Provider string       `yaml:"provider" env:"VECTOR_STORE_PROVIDER" envDefault:"pgvector" validate:"oneof=pgvector chromem pinecone"`
	PGVector PGVectorConf `yaml:"pgvector"`
	Chromem  ChromemConf  `yaml:"chromem"`
	Pinecone PineconeConf `yaml:"pinecone"`
}

type PGVectorConf struct {
	DSN   string `yaml:"dsn" env:"PGVECTOR_DSN"`
	Table string `yaml:"table" env:"PGVECTOR_TABLE" envDefault:"document_chunks" validate:"sql_identifier"`
}

type ChromemConf struct {
	Path        string `yaml:"path" env:"CHROMEM_PATH" envDefault:"./data/chromem"`
	Collection  string `yaml:"collection" env:"CHROMEM_COLLECTION" envDefault:"documents"`
	Compress    bool   `yaml:"compress" env:"CHROMEM_COMPRESS"`
	Concurrency int    `yaml:"concurrency" env:"CHROMEM_CONCURRENCY" envDefault:"4" validate:"gte=1"`
}

type PineconeConf struct {
	Host      string        `yaml:"host" env:"PINECONE_HOST" validate:"omitempty,url"`
	APIKey    string        `yaml:"api_key" env:"PINECONE_API_KEY"`
	Namespace string        `yaml:"namespace" env:"PINECONE_NAMESPACE"`
	Timeout   time.Duration `yaml:"timeout" env:"PINECONE_TIMEOUT" envDefault:"30s"`
}
