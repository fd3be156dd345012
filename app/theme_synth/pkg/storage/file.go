package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
)

// FileStore 以 JSON 文件存储，每个租户一个目录：
//
//	<base>/<tenant>/findings.json
//	<base>/<tenant>/themes/<theme_id>.json
//	<base>/<tenant>/alerts/<alert_id>.json
//	<base>/<tenant>/runs/<run_id>.json
type FileStore struct {
	basePath string
}

var _ Store = (*FileStore)(nil)

// NewFileStore 创建文件存储，基础目录不存在时自动创建
func NewFileStore(basePath string) (*FileStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("file store base path is empty")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, err
	}
	return &FileStore{basePath: basePath}, nil
}

func (s *FileStore) Close() error { return nil }

// GetFindings implements FindingStore
func (s *FileStore) GetFindings(_ context.Context, tenantID string) ([]*model.Finding, error) {
	data, err := os.ReadFile(filepath.Join(s.tenantPath(tenantID), "findings.json"))
	// 未导入过发现的租户视为空快照
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var findings []*model.Finding
	if err := json.Unmarshal(data, &findings); err != nil {
		return nil, fmt.Errorf("error decoding findings for tenant %s: %w", tenantID, err)
	}
	sort.SliceStable(findings, func(i, j int) bool { return findings[i].ID < findings[j].ID })
	return findings, nil
}

// ImportFindings 覆盖写入租户的发现文件
func (s *FileStore) ImportFindings(_ context.Context, tenantID string, findings []*model.Finding) error {
	return s.writeJSON(filepath.Join(s.tenantPath(tenantID), "findings.json"), findings)
}

// SaveTheme implements FindingStore
func (s *FileStore) SaveTheme(_ context.Context, tenantID string, rec model.Record) error {
	var dir string
	switch rec.(type) {
	case *model.Theme:
		dir = "themes"
	case *model.Alert:
		dir = "alerts"
	default:
		return fmt.Errorf("unsupported record type %T", rec)
	}
	path := filepath.Join(s.tenantPath(tenantID), dir, safeName(rec.RecordID())+".json")
	return s.writeJSON(path, rec)
}

// ListRecords implements RecordLister
func (s *FileStore) ListRecords(_ context.Context, tenantID string) ([]model.Record, error) {
	var out []model.Record

	themes, err := readDir[model.Theme](filepath.Join(s.tenantPath(tenantID), "themes"))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(themes, func(i, j int) bool { return themes[i].GeneratedAt.Before(themes[j].GeneratedAt) })
	for _, t := range themes {
		out = append(out, t)
	}

	alerts, err := readDir[model.Alert](filepath.Join(s.tenantPath(tenantID), "alerts"))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].GeneratedAt.Before(alerts[j].GeneratedAt) })
	for _, a := range alerts {
		out = append(out, a)
	}
	return out, nil
}

// RecordRun implements RunRecorder
func (s *FileStore) RecordRun(_ context.Context, summary *model.RunSummary) error {
	path := filepath.Join(s.tenantPath(summary.TenantID), "runs", safeName(summary.RunID)+".json")
	return s.writeJSON(path, summary)
}

func (s *FileStore) tenantPath(tenantID string) string {
	return filepath.Join(s.basePath, safeName(tenantID))
}

func (s *FileStore) writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding %s: %w", filepath.Base(path), err)
	}
	// 先写临时文件再改名，读方不会看到写了一半的文件
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// readDir 读取目录下全部 JSON 记录，目录不存在时返回空
func readDir[T any](dir string) ([]*T, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []*T
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("error decoding %s: %w", e.Name(), err)
		}
		out = append(out, &v)
	}
	return out, nil
}

// safeName 替换文件名中的非法字符
func safeName(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return r.Replace(key)
}
