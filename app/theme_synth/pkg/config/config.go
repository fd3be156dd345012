package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config 项目配置结构体
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Store       StoreConfig       `yaml:"store"`
	DB          DBConfig          `yaml:"db"`
	Log         LogConfig         `yaml:"log"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Clustering  ClusteringConfig  `yaml:"clustering"`
	Gate        GateConfig        `yaml:"gate"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Synthesis   SynthesisConfig   `yaml:"synthesis"`
	Quote       QuoteConfig       `yaml:"quote"`
	Run         RunConfig         `yaml:"run"`
}

// LLMConfig LLM 相关配置
type LLMConfig struct {
	Provider string `yaml:"provider" validate:"omitempty,oneof=eino openai langchaingo"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// EmbeddingConfig 向量服务配置
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" validate:"omitempty,oneof=openai http none"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size" validate:"gte=1"`
	Timeout   int    `yaml:"timeout"`    // 秒
	CachePath string `yaml:"cache_path"` // 为空时不启用 badger 持久缓存
}

// StoreConfig 存储后端配置
type StoreConfig struct {
	Driver   string `yaml:"driver" validate:"omitempty,oneof=postgres file"`
	BasePath string `yaml:"base_path"`
}

// DBConfig 数据库相关配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ConcurrencyConfig 并发控制配置
type ConcurrencyConfig struct {
	QPS     int `yaml:"qps" validate:"gte=1"`
	RPM     int `yaml:"rpm" validate:"gte=1"`
	Workers int `yaml:"workers" validate:"gte=1,lte=16"`
}

// ClusteringConfig 聚类阈值
type ClusteringConfig struct {
	DistanceThreshold float64 `yaml:"distance_threshold" validate:"gt=0,lte=1"`
	MinClusterSize    int     `yaml:"min_cluster_size" validate:"gte=2"`
	MaxFeatures       int     `yaml:"max_features" validate:"gte=1"`
	CrossCategory     bool    `yaml:"cross_category"`
	MinSharedTerms    int     `yaml:"min_shared_terms" validate:"gte=1"`
	MinTermLength     int     `yaml:"min_term_length" validate:"gte=1"` // 词长需大于该值
}

// GateConfig 跨实体校验配置
type GateConfig struct {
	MinEntities int `yaml:"min_entities" validate:"gte=1"`
	// AllowEntityless 租户完全没有实体数据时退化为仅按发现数量校验
	AllowEntityless bool `yaml:"allow_entityless"`
}

// ScoringConfig 证据评分阈值
type ScoringConfig struct {
	StrongThreshold   int `yaml:"strong_threshold" validate:"gte=0,lte=8"`
	ModerateThreshold int `yaml:"moderate_threshold" validate:"gte=0,lte=8"`
	LongQuoteChars    int `yaml:"long_quote_chars" validate:"gte=1"`
	SpecificChars     int `yaml:"specific_chars" validate:"gte=1"`
}

// SynthesisConfig 主题合成配置
type SynthesisConfig struct {
	Mode        string `yaml:"mode" validate:"omitempty,oneof=single multi_step"`
	SampleSize  int    `yaml:"sample_size" validate:"gte=1"`
	MaxRetries  int    `yaml:"max_retries" validate:"gte=0"`
	BaseDelayMS int    `yaml:"base_delay_ms" validate:"gte=0"`
	TimeoutSec  int    `yaml:"timeout_sec" validate:"gte=1"`
	Alerts      bool   `yaml:"alerts"`
}

// KeywordGroup 引用匹配的主题关键词组
type KeywordGroup struct {
	Name     string   `yaml:"name" validate:"required"`
	Keywords []string `yaml:"keywords" validate:"min=1"`
}

// QuoteConfig 引用匹配配置
type QuoteConfig struct {
	TopN                int            `yaml:"top_n" validate:"gte=1"`
	TopK                int            `yaml:"top_k" validate:"gte=1"`
	SimilarityThreshold float64        `yaml:"similarity_threshold" validate:"gte=0,lte=1"`
	KeywordGroups       []KeywordGroup `yaml:"keyword_groups" validate:"dive"`
}

// RunConfig 运行元数据
type RunConfig struct {
	VersionTag string `yaml:"version_tag"`
}

// Default 返回带默认阈值的配置
func Default() *Config {
	return &Config{
		LLM:       LLMConfig{Provider: "eino"},
		Embedding: EmbeddingConfig{Provider: "openai", BatchSize: 64, Timeout: 30},
		Store:     StoreConfig{Driver: "postgres"},
		Log:       LogConfig{Level: "info"},
		Concurrency: ConcurrencyConfig{
			QPS:     2,
			RPM:     60,
			Workers: 3,
		},
		Clustering: ClusteringConfig{
			DistanceThreshold: 0.7,
			MinClusterSize:    2,
			MaxFeatures:       1000,
			CrossCategory:     true,
			MinSharedTerms:    2,
			MinTermLength:     4,
		},
		Gate: GateConfig{MinEntities: 2},
		Scoring: ScoringConfig{
			StrongThreshold:   5,
			ModerateThreshold: 3,
			LongQuoteChars:    50,
			SpecificChars:     100,
		},
		Synthesis: SynthesisConfig{
			Mode:        "single",
			SampleSize:  5,
			MaxRetries:  2,
			BaseDelayMS: 1000,
			TimeoutSec:  60,
			Alerts:      true,
		},
		Quote: QuoteConfig{
			TopN:                5,
			TopK:                5,
			SimilarityThreshold: 0.5,
			KeywordGroups:       DefaultKeywordGroups(),
		},
		Run: RunConfig{VersionTag: "v1"},
	}
}

// DefaultKeywordGroups 默认的话题关键词组
func DefaultKeywordGroups() []KeywordGroup {
	return []KeywordGroup{
		{Name: "speaker_voice", Keywords: []string{"speaker", "voice", "diarization"}},
		{Name: "accuracy", Keywords: []string{"accuracy", "accurate", "inaccurate", "mistake"}},
		{Name: "cost", Keywords: []string{"cost", "price", "pricing", "expensive"}},
		{Name: "integration", Keywords: []string{"integration", "integrate", "api"}},
		{Name: "turnaround", Keywords: []string{"turnaround", "turn-around", "slow"}},
	}
}

// CrossCategoryMinEntities 跨类别聚类的放宽实体下限
func (g GateConfig) CrossCategoryMinEntities() int {
	return max(2, g.MinEntities-1)
}

// CallTimeout 单次 LLM 调用超时
func (s SynthesisConfig) CallTimeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// BaseDelay 重试退避基准
func (s SynthesisConfig) BaseDelay() time.Duration {
	return time.Duration(s.BaseDelayMS) * time.Millisecond
}

// LoadConfig 从指定路径加载配置，未填写的字段保留默认值
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 环境变量覆盖密钥类配置
func (c *Config) applyEnv() {
	if v := os.Getenv("THEME_SYNTH_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("THEME_SYNTH_EMBEDDING_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("THEME_SYNTH_DB_PASSWORD"); v != "" {
		c.DB.Password = v
	}
}

var validate = validator.New()

// Validate 校验配置取值范围
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Scoring.ModerateThreshold > c.Scoring.StrongThreshold {
		return fmt.Errorf("invalid config: moderate_threshold %d exceeds strong_threshold %d",
			c.Scoring.ModerateThreshold, c.Scoring.StrongThreshold)
	}
	return nil
}
