package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"groupchat/pkg/client"
	"groupchat/pkg/logger"
)

// ChatMessage is one entry of an upstream chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// ChatRequest is the body of an upstream chat completion call.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Client calls one OpenAI-compatible endpoint.
type Client struct {
	http *client.Client
}

// NewClient builds a Client for a base URL and bearer key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		http: client.New(baseURL, client.WithHeader("Authorization", "Bearer "+apiKey)),
	}
}

// StreamChat runs a streaming chat completion and invokes fn for every
// content delta. It returns when the upstream stream ends, fn errors, or
// ctx is cancelled.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest, fn func(delta string) error) error {
	req.Stream = true
	body, err := c.http.PostStream(ctx, "/chat/completions", req)
	if err != nil {
		return err
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			if payload == "[DONE]" {
				return nil
			}
			continue
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			logger.Warn("upstream_frame_skipped", "error", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := fn(delta); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read upstream stream: %w", err)
	}
	return nil
}

// Complete runs a non-streaming chat completion and returns the full text.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (string, error) {
	req.Stream = false
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.http.PostJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embeddings computes embedding vectors for the given inputs.
func (c *Client) Embeddings(ctx context.Context, model string, input []string) ([][]float32, error) {
	req := map[string]any{"model": model, "input": input}
	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.http.PostJSON(ctx, "/embeddings", req, &resp); err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(resp.Data))
	for _, d := range resp.Data {
		out = append(out, d.Embedding)
	}
	return out, nil
}
