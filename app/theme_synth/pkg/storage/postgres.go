package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/config"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
)

// Postgres 基于 lib/pq 的存储实现
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres 连接数据库并初始化表结构
func NewPostgres(cfg config.DBConfig) (*Postgres, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Postgres{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Postgres) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS findings (
		tenant_id TEXT NOT NULL,
		finding_id TEXT NOT NULL,
		statement TEXT NOT NULL,
		entity_id TEXT,
		category TEXT,
		primary_quote TEXT,
		secondary_quote TEXT,
		evidence_strength DOUBLE PRECISION DEFAULT 0,
		priority BOOLEAN DEFAULT FALSE,
		PRIMARY KEY (tenant_id, finding_id)
	)`,
	`CREATE TABLE IF NOT EXISTS themes (
		theme_id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		title TEXT NOT NULL,
		statement TEXT NOT NULL,
		classification TEXT NOT NULL,
		supporting_finding_ids TEXT[] NOT NULL,
		entity_ids TEXT[] NOT NULL,
		primary_quote TEXT,
		secondary_quote TEXT,
		evidence_strength TEXT NOT NULL,
		evidence_score INTEGER NOT NULL,
		cross_entity_validated BOOLEAN NOT NULL,
		run_id TEXT NOT NULL,
		run_version_tag TEXT,
		generated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		alert_id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		title TEXT NOT NULL,
		statement TEXT NOT NULL,
		classification TEXT NOT NULL,
		supporting_finding_ids TEXT[] NOT NULL,
		entity_id TEXT NOT NULL,
		quote TEXT,
		evidence_strength TEXT NOT NULL,
		evidence_score INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		run_version_tag TEXT,
		generated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS synthesis_runs (
		run_id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		summary JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_themes_tenant ON themes (tenant_id, generated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_tenant ON alerts (tenant_id, generated_at)`,
}

func (s *Postgres) initSchema() error {
	for _, query := range schema {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}
	return nil
}

// GetFindings implements FindingStore
func (s *Postgres) GetFindings(ctx context.Context, tenantID string) ([]*model.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT finding_id, statement, COALESCE(entity_id, ''), COALESCE(category, ''),
			COALESCE(primary_quote, ''), COALESCE(secondary_quote, ''), evidence_strength, priority
		FROM findings
		WHERE tenant_id = $1
		ORDER BY finding_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var out []*model.Finding
	for rows.Next() {
		var f model.Finding
		if err := rows.Scan(&f.ID, &f.Statement, &f.EntityID, &f.Category,
			&f.PrimaryQuote, &f.SecondaryQuote, &f.EvidenceStrength, &f.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// ImportFindings 写入或覆盖租户的发现
func (s *Postgres) ImportFindings(ctx context.Context, tenantID string, findings []*model.Finding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, f := range findings {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO findings (tenant_id, finding_id, statement, entity_id, category,
				primary_quote, secondary_quote, evidence_strength, priority)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (tenant_id, finding_id) DO UPDATE SET
				statement = EXCLUDED.statement,
				entity_id = EXCLUDED.entity_id,
				category = EXCLUDED.category,
				primary_quote = EXCLUDED.primary_quote,
				secondary_quote = EXCLUDED.secondary_quote,
				evidence_strength = EXCLUDED.evidence_strength,
				priority = EXCLUDED.priority`,
			tenantID, f.ID, sanitize(f.Statement), f.EntityID, f.Category,
			sanitize(f.PrimaryQuote), sanitize(f.SecondaryQuote), f.EvidenceStrength, f.Priority)
		if err != nil {
			return fmt.Errorf("failed to insert finding %s: %w", f.ID, err)
		}
	}

	return tx.Commit()
}

// SaveTheme implements FindingStore
func (s *Postgres) SaveTheme(ctx context.Context, tenantID string, rec model.Record) error {
	var err error
	switch r := rec.(type) {
	case *model.Theme:
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO themes (theme_id, tenant_id, title, statement, classification,
				supporting_finding_ids, entity_ids, primary_quote, secondary_quote,
				evidence_strength, evidence_score, cross_entity_validated,
				run_id, run_version_tag, generated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			r.ID, tenantID, sanitize(r.Title), sanitize(r.Statement), r.Classification,
			pq.Array(r.SupportingFindingIDs), pq.Array(r.EntityIDs),
			sanitize(r.PrimaryQuote), sanitize(r.SecondaryQuote),
			r.Strength, r.Score, r.CrossEntityValidated,
			r.RunID, r.RunVersionTag, r.GeneratedAt)
	case *model.Alert:
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO alerts (alert_id, tenant_id, title, statement, classification,
				supporting_finding_ids, entity_id, quote, evidence_strength, evidence_score,
				run_id, run_version_tag, generated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			r.ID, tenantID, sanitize(r.Title), sanitize(r.Statement), r.Classification,
			pq.Array(r.SupportingFindingIDs), r.EntityID, sanitize(r.Quote),
			r.Strength, r.Score, r.RunID, r.RunVersionTag, r.GeneratedAt)
	default:
		return fmt.Errorf("unsupported record type %T", rec)
	}
	if err != nil {
		return fmt.Errorf("failed to insert %s %s: %w", rec.RecordKind(), rec.RecordID(), err)
	}
	return nil
}

// ListRecords implements RecordLister，主题在前、告警在后，各自按生成时间排序
func (s *Postgres) ListRecords(ctx context.Context, tenantID string) ([]model.Record, error) {
	var out []model.Record

	rows, err := s.db.QueryContext(ctx, `
		SELECT theme_id, title, statement, classification, supporting_finding_ids, entity_ids,
			COALESCE(primary_quote, ''), COALESCE(secondary_quote, ''), evidence_strength,
			evidence_score, cross_entity_validated, run_id, COALESCE(run_version_tag, ''), generated_at
		FROM themes WHERE tenant_id = $1 ORDER BY generated_at, theme_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query themes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t model.Theme
		if err := rows.Scan(&t.ID, &t.Title, &t.Statement, &t.Classification,
			pq.Array(&t.SupportingFindingIDs), pq.Array(&t.EntityIDs),
			&t.PrimaryQuote, &t.SecondaryQuote, &t.Strength, &t.Score, &t.CrossEntityValidated,
			&t.RunID, &t.RunVersionTag, &t.GeneratedAt); err != nil {
			return nil, fmt.Errorf("failed to scan theme: %w", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	alertRows, err := s.db.QueryContext(ctx, `
		SELECT alert_id, title, statement, classification, supporting_finding_ids, entity_id,
			COALESCE(quote, ''), evidence_strength, evidence_score, run_id,
			COALESCE(run_version_tag, ''), generated_at
		FROM alerts WHERE tenant_id = $1 ORDER BY generated_at, alert_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer alertRows.Close()
	for alertRows.Next() {
		var a model.Alert
		if err := alertRows.Scan(&a.ID, &a.Title, &a.Statement, &a.Classification,
			pq.Array(&a.SupportingFindingIDs), &a.EntityID, &a.Quote, &a.Strength, &a.Score,
			&a.RunID, &a.RunVersionTag, &a.GeneratedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, &a)
	}
	return out, alertRows.Err()
}

// RecordRun implements RunRecorder
func (s *Postgres) RecordRun(ctx context.Context, summary *model.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO synthesis_runs (run_id, tenant_id, status, error, started_at, finished_at, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at,
			summary = EXCLUDED.summary`,
		summary.RunID, summary.TenantID, summary.Status, summary.Error,
		summary.StartedAt, summary.FinishedAt, data)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", summary.RunID, err)
	}
	return nil
}
