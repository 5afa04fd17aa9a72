package embed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BedrockClient é o subconjunto do bedrockruntime.Client usado aqui.
type BedrockClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Bedrock gera embeddings com os modelos Titan, um texto por chamada.
type Bedrock struct {
	client    BedrockClient
	model     string
	dimension int
}

func NewBedrock(client BedrockClient, model string, dimension int) *Bedrock {
	return &Bedrock{client: client, model: model, dimension: dimension}
}

func (b *Bedrock) Dimension() int { return b.dimension }
func (b *Bedrock) Model() string  { return b.model }

type titanRequest struct {
	InputText string `json:"inputText"`
}

type titanResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

func (b *Bedrock) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		body, err := json.Marshal(titanRequest{InputText: text})
		if err != nil {
			return nil, err
		}

		resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(b.model),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			return nil, fmt.Errorf("bedrock: invoke %s: %w", b.model, err)
		}

		var parsed titanResponse
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			return nil, fmt.Errorf("bedrock: decode response: %w", err)
		}
		if len(parsed.Embedding) == 0 {
			return nil, fmt.Errorf("bedrock: empty embedding for input %d", i)
		}
		out[i] = parsed.Embedding
	}
	return out, nil
}
