package embedding

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/logger"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/textsim"
)

// Cache 单次运行内的发现向量表：构建完成后只读，可无锁共享
type Cache struct {
	ids     []string
	vectors map[string][]float32
}

// Match 向量检索结果
type Match struct {
	FindingID  string
	Similarity float64
}

// BuildCache 分批并发计算全部发现的向量。
// 单个批次失败只丢弃该批并记录日志，其余批次照常写入。
func BuildCache(ctx context.Context, e Embedder, findings []*model.Finding, batchSize, workers int) *Cache {
	if batchSize <= 0 {
		batchSize = 64
	}
	if workers <= 0 {
		workers = 1
	}

	type batch struct {
		findings []*model.Finding
		vectors  [][]float32
	}
	var batches []*batch
	for start := 0; start < len(findings); start += batchSize {
		end := min(start+batchSize, len(findings))
		batches = append(batches, &batch{findings: findings[start:end]})
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, b := range batches {
		i, b := i, b
		g.Go(func() error {
			texts := make([]string, len(b.findings))
			for k, f := range b.findings {
				texts[k] = f.Text()
			}
			vectors, err := e.Embed(ctx, texts)
			if err != nil {
				logger.Log.WithField("batch", i).Warnf("向量批次计算失败，跳过 %d 条发现: %v", len(texts), err)
				return nil
			}
			b.vectors = vectors
			return nil
		})
	}
	_ = g.Wait()

	c := &Cache{vectors: make(map[string][]float32, len(findings))}
	for _, b := range batches {
		for k, f := range b.findings {
			if k < len(b.vectors) && len(b.vectors[k]) > 0 {
				c.vectors[f.ID] = b.vectors[k]
				c.ids = append(c.ids, f.ID)
			}
		}
	}
	sort.Strings(c.ids)
	return c
}

// Len 已缓存的向量数
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.ids)
}

// vector 按发现 ID 取向量
func (c *Cache) vector(id string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.vectors[id]
	return v, ok
}

// Nearest 返回相似度 >= threshold 的前 k 个发现，按相似度降序、ID 升序
func (c *Cache) Nearest(query []float32, threshold float64, k int) []Match {
	if c == nil {
		return nil
	}
	var out []Match
	for _, id := range c.ids {
		sim := textsim.CosineDense(query, c.vectors[id])
		if sim >= threshold {
			out = append(out, Match{FindingID: id, Similarity: sim})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
