package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/raywall/fast-doc-pipeline/envloader"
	"github.com/raywall/fast-doc-pipeline/pkg/awsutil"
	"github.com/raywall/fast-doc-pipeline/pkg/config"
	"github.com/raywall/fast-doc-pipeline/pkg/controltable"
	"github.com/raywall/fast-doc-pipeline/pkg/engine"
)

const usage = "Comandos esperados: submit | status | list | retry | validate"

// Repository é o subconjunto da tabela de controle usado pela CLI.
type Repository interface {
	Register(ctx context.Context, rec controltable.DocumentRecord) (*controltable.DocumentRecord, error)
	Get(ctx context.Context, id string) (*controltable.DocumentRecord, error)
	ListByStatus(ctx context.Context, status controltable.Status, limit int32, token string) ([]controltable.DocumentRecord, string, error)
	Retry(ctx context.Context, id string) (*controltable.DocumentRecord, error)
}

// Injetável para testes
var repoFactory = func(ctx context.Context) (Repository, error) {
	var env struct {
		AWS          config.AWSConf
		ControlTable config.ControlTableConf
	}
	if err := envloader.Load(&env); err != nil {
		return nil, err
	}
	awsCfg, err := awsutil.GetAWSConfig(ctx, env.AWS.Region, env.AWS.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("falha ao carregar configuração AWS: %w", err)
	}
	return controltable.NewDynamoRepository(dynamodb.NewFromConfig(awsCfg), env.ControlTable), nil
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executa o subcomando e devolve o exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	out := &printer{w: stdout, json: os.Getenv("OUTPUT_FORMAT") == "json"}
	var err error
	switch args[0] {
	case "submit":
		err = runSubmit(ctx, args[1:], out)
	case "status":
		err = runStatus(ctx, args[1:], out)
	case "list":
		err = runList(ctx, args[1:], out)
	case "retry":
		err = runRetry(ctx, args[1:], out)
	case "validate":
		err = runValidate(ctx, args[1:], out)
	default:
		fmt.Fprintf(stderr, "Comando desconhecido: %s\n%s\n", args[0], usage)
		return 2
	}

	var usageErr usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &usageErr), errors.Is(err, flag.ErrHelp):
		fmt.Fprintf(stderr, "Erro: %v\n", err)
		return 2
	default:
		fmt.Fprintf(stderr, "Erro: %v\n", err)
		return 1
	}
}

type usageError string

func (e usageError) Error() string { return string(e) }

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func runSubmit(ctx context.Context, args []string, out *printer) error {
	fs := newFlags("submit")
	bucket := fs.String("bucket", "", "bucket de origem")
	key := fs.String("key", "", "chave do objeto")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bucket == "" || *key == "" {
		return usageError("flags -bucket e -key são obrigatórias")
	}

	repo, err := repoFactory(ctx)
	if err != nil {
		return err
	}
	rec, err := repo.Register(ctx, controltable.NewRecord(*bucket, *key, 0, "", time.Now()))
	if errors.Is(err, controltable.ErrAlreadyRegistered) {
		return fmt.Errorf("documento %s já registrado", controltable.DocumentIDFor(*bucket, *key))
	}
	if err != nil {
		return err
	}
	return out.record(rec)
}

func runStatus(ctx context.Context, args []string, out *printer) error {
	fs := newFlags("status")
	id := fs.String("id", "", "document_id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return usageError("flag -id é obrigatória")
	}

	repo, err := repoFactory(ctx)
	if err != nil {
		return err
	}
	rec, err := repo.Get(ctx, *id)
	if errors.Is(err, controltable.ErrNotFound) {
		return fmt.Errorf("documento %s não encontrado", *id)
	}
	if err != nil {
		return err
	}
	return out.record(rec)
}

func runList(ctx context.Context, args []string, out *printer) error {
	fs := newFlags("list")
	statusFlag := fs.String("status", "FAILED", "PENDING | IN_PROGRESS | COMPLETED | FAILED")
	limit := fs.Int("limit", 50, "máximo de itens")
	next := fs.String("next", "", "token de paginação")
	if err := fs.Parse(args); err != nil {
		return err
	}
	status, err := controltable.ParseStatus(*statusFlag)
	if err != nil {
		return usageError(err.Error())
	}
	if *limit < 1 {
		return usageError("flag -limit deve ser positiva")
	}

	repo, err := repoFactory(ctx)
	if err != nil {
		return err
	}
	items, token, err := repo.ListByStatus(ctx, status, int32(*limit), *next)
	if err != nil {
		return err
	}
	return out.list(items, token)
}

func runRetry(ctx context.Context, args []string, out *printer) error {
	fs := newFlags("retry")
	id := fs.String("id", "", "document_id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return usageError("flag -id é obrigatória")
	}

	repo, err := repoFactory(ctx)
	if err != nil {
		return err
	}
	rec, err := repo.Retry(ctx, *id)
	if errors.Is(err, controltable.ErrNotFailed) {
		return fmt.Errorf("documento %s não existe ou não está FAILED", *id)
	}
	if err != nil {
		return err
	}
	return out.record(rec)
}

// runValidate carrega o arquivo sem validação e delega ao Analyze, para que
// todos os problemas apareçam juntos no relatório.
func runValidate(ctx context.Context, args []string, out *printer) error {
	fs := newFlags("validate")
	file := fs.String("file", "", "caminho do arquivo YAML")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return usageError("flag -file é obrigatória")
	}

	loader := config.NewUniversalLoader(config.WithValidator(nil))
	cfg, err := loader.Load(ctx, *file)
	if err != nil {
		return fmt.Errorf("erro de carregamento: %w", err)
	}

	report, err := engine.Analyze(cfg)
	if err != nil {
		return err
	}
	if err := out.report(report); err != nil {
		return err
	}
	if !report.Valid {
		return errors.New("a configuração contém erros")
	}
	return nil
}

type printer struct {
	w    io.Writer
	json bool
}

func (p *printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) record(rec *controltable.DocumentRecord) error {
	if p.json {
		return p.encode(rec)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "document_id\t%s\n", rec.DocumentID)
	fmt.Fprintf(tw, "status\t%s\n", rec.Status)
	fmt.Fprintf(tw, "source\t%s\n", rec.SourceURI())
	fmt.Fprintf(tw, "updated_at\t%s\n", rec.UpdatedAt)
	if len(rec.StagesCompleted) > 0 {
		fmt.Fprintf(tw, "stages\t%s\n", strings.Join(rec.StagesCompleted, ","))
	}
	if rec.ClaimedBy != "" {
		fmt.Fprintf(tw, "claimed_by\t%s\n", rec.ClaimedBy)
	}
	if rec.Status == controltable.StatusCompleted {
		fmt.Fprintf(tw, "chunks\t%d\n", rec.ChunkCount)
		fmt.Fprintf(tw, "vectors\t%d\n", rec.VectorCount)
	}
	if rec.ErrorMessage != "" {
		fmt.Fprintf(tw, "error\t[%s] %s\n", rec.ErrorStage, rec.ErrorMessage)
	}
	return tw.Flush()
}

func (p *printer) list(items []controltable.DocumentRecord, next string) error {
	if p.json {
		if items == nil {
			items = []controltable.DocumentRecord{}
		}
		return p.encode(map[string]any{"items": items, "count": len(items), "next": next})
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOCUMENT_ID\tSTATUS\tUPDATED_AT\tSOURCE")
	for _, r := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.DocumentID, r.Status, r.UpdatedAt, r.SourceURI())
	}
	if next != "" {
		fmt.Fprintf(tw, "\nnext: %s\n", next)
	}
	return tw.Flush()
}

func (p *printer) report(r *engine.ValidationReport) error {
	if p.json {
		return p.encode(r)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(p.w, "ERRO  %s\n", e)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(p.w, "AVISO %s\n", w)
	}
	if r.Valid {
		fmt.Fprintln(p.w, "Configuração válida")
	}
	return nil
}

