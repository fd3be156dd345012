package storage

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
)

// FindingStore 发现读取与主题写入
type FindingStore interface {
	// GetFindings 返回租户发现的稳定快照
	GetFindings(ctx context.Context, tenantID string) ([]*model.Finding, error)
	// SaveTheme 持久化一条主题或告警，单条失败不影响其它记录
	SaveTheme(ctx context.Context, tenantID string, rec model.Record) error
}

// RunRecorder 运行汇总写入
type RunRecorder interface {
	RecordRun(ctx context.Context, summary *model.RunSummary) error
}

// RecordLister 读取已持久化的主题与告警
type RecordLister interface {
	ListRecords(ctx context.Context, tenantID string) ([]model.Record, error)
}

// FindingImporter 批量导入上游发现
type FindingImporter interface {
	ImportFindings(ctx context.Context, tenantID string, findings []*model.Finding) error
}

// Store 完整的存储后端
type Store interface {
	FindingStore
	RunRecorder
	RecordLister
	FindingImporter
	Close() error
}

// sanitize 移除无效 UTF-8 与 NULL 字节，PostgreSQL 文本字段不支持 NULL 字节
func sanitize(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return strings.ReplaceAll(s, "\x00", "")
}
