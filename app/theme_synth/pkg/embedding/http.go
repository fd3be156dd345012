package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPEmbedder 调用自建向量服务的 /batch_embed 接口
type HTTPEmbedder struct {
	endpoint string
	model    string
	client   *http.Client
}

var _ Embedder = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder 创建 HTTP 向量客户端
func NewHTTPEmbedder(baseURL, model string, timeout int) *HTTPEmbedder {
	if timeout <= 0 {
		timeout = 30
	}
	return &HTTPEmbedder{
		endpoint: strings.TrimRight(baseURL, "/") + "/batch_embed",
		model:    model,
		client:   &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}
}

// BatchEmbedRequest 批量向量请求
type BatchEmbedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

// BatchEmbedResponse 批量向量响应
type BatchEmbedResponse struct {
	Vectors [][]float32 `json:"vectors"`
	Model   string      `json:"model"`
	Dim     int         `json:"dim"`
}

// Model implements Embedder
func (e *HTTPEmbedder) Model() string { return e.model }

// Embed implements Embedder
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	jsonData, err := json.Marshal(BatchEmbedRequest{Texts: texts, Model: e.model})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call /batch_embed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("/batch_embed returned status %d: %s", resp.StatusCode, string(body))
	}

	var result BatchEmbedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode /batch_embed response: %w", err)
	}
	if len(result.Vectors) != len(texts) {
		return nil, fmt.Errorf("/batch_embed returned %d vectors for %d texts", len(result.Vectors), len(texts))
	}
	return result.Vectors, nil
}
