package knowledge

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"groupchat/pkg/llm"
	"groupchat/pkg/logger"
)

// QdrantRetriever answers queries against a qdrant collection using
// embedding similarity. Documents are expected to carry their text in a
// "text" payload field.
type QdrantRetriever struct {
	client     *qdrant.Client
	embed      *llm.Client
	embedModel string
	collection string
}

// NewQdrantRetriever connects to qdrant and keeps an embedding client
// for query vectors.
func NewQdrantRetriever(host string, port int, apiKey string, useTLS bool, collection string, embed *llm.Client, embedModel string) (*QdrantRetriever, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	logger.Info("qdrant_connected", "host", host, "port", port, "collection", collection)
	return &QdrantRetriever{
		client:     client,
		embed:      embed,
		embedModel: embedModel,
		collection: collection,
	}, nil
}

func (q *QdrantRetriever) Retrieve(ctx context.Context, base, query string, topK int) ([]string, error) {
	vecs, err := q.embed.Embeddings(ctx, q.embedModel, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: empty response")
	}
	if topK <= 0 {
		topK = 3
	}
	collection := q.collection
	if base != "" {
		collection = base
	}
	limit := uint64(topK)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vecs[0]...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	out := make([]string, 0, len(points))
	for _, pt := range points {
		if v, ok := pt.Payload["text"]; ok {
			if s := v.GetStringValue(); s != "" {
				out = append(out, s)
			}
		}
	}
	return out, nil
}
