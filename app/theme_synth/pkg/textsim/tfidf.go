package textsim

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrEmptyVocabulary 语料去除停用词后没有任何词项
var ErrEmptyVocabulary = errors.New("empty vocabulary")

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Tokenize 小写化并切分为单词，丢弃单字符词与停用词
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if utf8.RuneCountInString(tok) < 2 || IsStopWord(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Vector L2 归一化的稀疏向量，Indices 升序
type Vector struct {
	Indices []int
	Values  []float64
}

// Vectorizer 单词级 TF-IDF（平滑 IDF，L2 归一化）
type Vectorizer struct {
	MaxFeatures int

	vocab []string
}

// NewVectorizer 创建向量化器，maxFeatures<=0 表示不限制词表
func NewVectorizer(maxFeatures int) *Vectorizer {
	return &Vectorizer{MaxFeatures: maxFeatures}
}

// FitTransform 在 docs 上拟合词表并返回每篇文档的向量
func (v *Vectorizer) FitTransform(docs []string) ([]Vector, error) {
	tokens := make([][]string, len(docs))
	corpusFreq := make(map[string]int)
	docFreq := make(map[string]int)
	for i, doc := range docs {
		tokens[i] = Tokenize(doc)
		seen := make(map[string]bool)
		for _, t := range tokens[i] {
			corpusFreq[t]++
			if !seen[t] {
				seen[t] = true
				docFreq[t]++
			}
		}
	}
	if len(corpusFreq) == 0 {
		return nil, ErrEmptyVocabulary
	}

	terms := make([]string, 0, len(corpusFreq))
	for t := range corpusFreq {
		terms = append(terms, t)
	}
	// 词表上限按语料词频截断，同频按字典序保证确定性
	sort.Slice(terms, func(i, j int) bool {
		if corpusFreq[terms[i]] != corpusFreq[terms[j]] {
			return corpusFreq[terms[i]] > corpusFreq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if v.MaxFeatures > 0 && len(terms) > v.MaxFeatures {
		terms = terms[:v.MaxFeatures]
	}
	sort.Strings(terms)
	v.vocab = terms

	index := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(docs))
	for i, t := range terms {
		index[t] = i
		idf[i] = math.Log((1+n)/(1+float64(docFreq[t]))) + 1
	}

	vectors := make([]Vector, len(docs))
	for i, toks := range tokens {
		tf := make(map[int]float64)
		for _, t := range toks {
			if j, ok := index[t]; ok {
				tf[j]++
			}
		}
		vectors[i] = normalize(tf, idf)
	}
	return vectors, nil
}

func normalize(tf map[int]float64, idf []float64) Vector {
	idx := make([]int, 0, len(tf))
	for j := range tf {
		idx = append(idx, j)
	}
	sort.Ints(idx)

	vals := make([]float64, len(idx))
	var norm float64
	for k, j := range idx {
		vals[k] = tf[j] * idf[j]
		norm += vals[k] * vals[k]
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for k := range vals {
			vals[k] /= norm
		}
	}
	return Vector{Indices: idx, Values: vals}
}

// Cosine 两个归一化稀疏向量的余弦相似度；零向量相似度为 0
func Cosine(a, b Vector) float64 {
	var dot float64
	i, j := 0, 0
	for i < len(a.Indices) && j < len(b.Indices) {
		switch {
		case a.Indices[i] == b.Indices[j]:
			dot += a.Values[i] * b.Values[j]
			i++
			j++
		case a.Indices[i] < b.Indices[j]:
			i++
		default:
			j++
		}
	}
	return dot
}

// DistanceMatrix 计算 1-cosine 距离矩阵，裁剪到 [0,1]
func DistanceMatrix(vectors []Vector) [][]float64 {
	n := len(vectors)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := clip01(1 - Cosine(vectors[i], vectors[j]))
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

// CosineDense 稠密向量的余弦相似度，维度不一致或零向量返回 0
func CosineDense(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clip01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
