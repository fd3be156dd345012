package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/logger"
)

// BadgerCache 持久化的向量缓存，键为 模型名 + 文本 SHA-256
type BadgerCache struct {
	db *badger.DB
}

// OpenBadgerCache 打开缓存目录，path 为空时使用内存模式
func OpenBadgerCache(path string) (*BadgerCache, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(logger.Log.WithField("component", "badger"))

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

// Close 关闭缓存
func (c *BadgerCache) Close() error {
	return c.db.Close()
}

func cacheKey(model, text string) []byte {
	sum := sha256.Sum256([]byte(text))
	return []byte("emb:" + model + ":" + hex.EncodeToString(sum[:]))
}

// Get 批量读取，未命中的位置为 nil
func (c *BadgerCache) Get(model string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	err := c.db.View(func(txn *badger.Txn) error {
		for i, text := range texts {
			item, err := txn.Get(cacheKey(model, text))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				out[i] = decodeVector(val)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// Put 批量写入
func (c *BadgerCache) Put(model string, texts []string, vectors [][]float32) error {
	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for i, text := range texts {
		if err := wb.Set(cacheKey(model, text), encodeVector(vectors[i])); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

// cached 先查 badger，只对未命中的文本调用下游
type cached struct {
	Embedder
	cache *BadgerCache
}

// WithBadgerCache 为 Embedder 加上持久缓存
func WithBadgerCache(e Embedder, cache *BadgerCache) Embedder {
	if cache == nil {
		return e
	}
	return &cached{Embedder: e, cache: cache}
}

func (c *cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := c.cache.Get(c.Model(), texts)
	if err != nil {
		logger.Log.Warnf("读取向量缓存失败，全部重新计算: %v", err)
		out = make([][]float32, len(texts))
	}

	var missIdx []int
	var missTexts []string
	for i, v := range out {
		if v == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.Embedder.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for k, i := range missIdx {
		out[i] = vectors[k]
	}
	if err := c.cache.Put(c.Model(), missTexts, vectors); err != nil {
		logger.Log.Warnf("写入向量缓存失败: %v", err)
	}
	return out, nil
}
