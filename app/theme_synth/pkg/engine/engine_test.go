package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/config"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/llm"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/synth"
)

type memStore struct {
	mu       sync.Mutex
	findings []*model.Finding
	getErr   error
	saveErr  error
	records  []model.Record
	runs     []*model.RunSummary
}

func (s *memStore) GetFindings(context.Context, string) ([]*model.Finding, error) {
	return s.findings, s.getErr
}

func (s *memStore) SaveTheme(_ context.Context, _ string, rec model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memStore) RecordRun(_ context.Context, sum *model.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, sum)
	return nil
}

var promptIDs = regexp.MustCompile(`\[(F\d+)\]`)

// fakeLLM 根据提示中的发现 ID 生成主题；命中 badRef 返回不存在的 ID，命中 timeout 一直超时
type fakeLLM struct {
	mu      sync.Mutex
	calls   int
	badRef  string
	timeout string
	empty   bool
}

func (f *fakeLLM) Complete(_ context.Context, _, user string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.empty {
		return "", llm.ErrEmptyResponse
	}
	if f.timeout != "" && strings.Contains(user, "["+f.timeout+"]") {
		return "", context.DeadlineExceeded
	}
	var ids []string
	for _, m := range promptIDs.FindAllStringSubmatch(user, -1) {
		ids = append(ids, `"`+m[1]+`"`)
	}
	if f.badRef != "" && strings.Contains(user, "["+f.badRef+"]") {
		ids = append(ids, `"F999"`)
	}
	return fmt.Sprintf(`{"title": "Slow turnaround", "statement": "Customers report slow turnaround. Teams lose time waiting.", "classification": "threat", "supporting_finding_ids": [%s]}`,
		strings.Join(ids, ", ")), nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Concurrency.RPM = 60000
	cfg.Concurrency.QPS = 100
	cfg.Synthesis.BaseDelayMS = 1
	return cfg
}

func scenarioFindings() []*model.Finding {
	findings := []*model.Finding{
		{ID: "F01", EntityID: "acme", Category: "turnaround", EvidenceStrength: 7,
			Statement: "turnaround time was too slow", PrimaryQuote: "the turnaround was painfully slow for us"},
		{ID: "F02", EntityID: "globex", Category: "turnaround", EvidenceStrength: 6,
			Statement: "transcription turnaround was slow", PrimaryQuote: "slow turnaround hurt our whole team"},
		{ID: "F20", EntityID: "e1", Category: "cost", Statement: "renewal pricing too expensive"},
		{ID: "F21", EntityID: "e2", Category: "cost", Statement: "pricing for renewal expensive"},
		{ID: "F30", EntityID: "e3", Category: "integration", Statement: "api integration keeps breaking"},
		{ID: "F31", EntityID: "e4", Category: "integration", Statement: "api integration keeps breaking weekly"},
	}
	for i := 0; i < 10; i++ {
		findings = append(findings, &model.Finding{
			ID:        fmt.Sprintf("F4%d", i),
			EntityID:  "solo",
			Category:  "speaker",
			Statement: fmt.Sprintf("speaker labels were wrong in meeting transcript %d", i),
		})
	}
	return findings
}

func TestRun_Scenarios(t *testing.T) {
	store := &memStore{findings: scenarioFindings()}
	completer := &fakeLLM{badRef: "F20", timeout: "F30"}
	e, err := NewEngine(testConfig(), Deps{Store: store, Recorder: store, Completer: completer})
	require.NoError(t, err)

	sum, err := e.Run(context.Background(), "tenant-a")
	require.NoError(t, err)

	assert.Equal(t, model.RunSucceeded, sum.Status)
	assert.Equal(t, 16, sum.FindingsProcessed)
	assert.Equal(t, 4, sum.ClustersFormed)
	assert.Equal(t, map[model.Reason]int{model.ReasonInsufficientEntities: 1}, sum.ClustersRejected)
	assert.Equal(t, 1, sum.ThemesSynthesized)
	assert.Equal(t, map[model.Reason]int{
		model.ReasonInvalidReference:     1,
		model.ReasonSynthesisUnavailable: 1,
	}, sum.ThemesRejected)
	assert.Equal(t, 1, sum.ThemesPersisted)
	assert.Zero(t, sum.AlertsPersisted)
	assert.False(t, sum.EntitylessMode)
	// 1 + 1 + (1 + 2 retries)
	assert.Equal(t, 5, completer.calls)

	require.Len(t, store.records, 1)
	theme, ok := store.records[0].(*model.Theme)
	require.True(t, ok)
	assert.Equal(t, []string{"F01", "F02"}, theme.SupportingFindingIDs)
	assert.Equal(t, []string{"acme", "globex"}, theme.EntityIDs)
	assert.Equal(t, "the turnaround was painfully slow for us", theme.PrimaryQuote)
	assert.Equal(t, "slow turnaround hurt our whole team", theme.SecondaryQuote)
	assert.True(t, theme.CrossEntityValidated)
	assert.Equal(t, model.StrengthModerate, theme.Strength)
	assert.Equal(t, sum.RunID, theme.RunID)
	assert.Equal(t, "v1", theme.RunVersionTag)
	assert.NotEmpty(t, theme.ID)

	require.Len(t, store.runs, 1)
	assert.Same(t, sum, store.runs[0])
}

func TestRun_PersistedThemesAreValid(t *testing.T) {
	store := &memStore{findings: scenarioFindings()}
	e, err := NewEngine(testConfig(), Deps{Store: store, Completer: &fakeLLM{}})
	require.NoError(t, err)

	_, err = e.Run(context.Background(), "tenant-a")
	require.NoError(t, err)

	idx := model.NewIndex(store.findings)
	require.NotEmpty(t, store.records)
	for _, rec := range store.records {
		theme, ok := rec.(*model.Theme)
		require.True(t, ok)
		assert.GreaterOrEqual(t, len(theme.EntityIDs), 2)
		_, missing := idx.Resolve(theme.SupportingFindingIDs)
		assert.Empty(t, missing)
		assert.NotEqual(t, model.StrengthWeak, theme.Strength)
	}
}

func TestRun_AllSynthesisUnavailable(t *testing.T) {
	store := &memStore{findings: scenarioFindings()[:2]}
	completer := &fakeLLM{timeout: "F01"}
	e, err := NewEngine(testConfig(), Deps{Store: store, Recorder: store, Completer: completer})
	require.NoError(t, err)

	sum, err := e.Run(context.Background(), "tenant-a")
	assert.ErrorIs(t, err, synth.ErrLLMUnavailable)
	assert.Equal(t, model.RunFailed, sum.Status)
	assert.NotEmpty(t, sum.Error)
	require.Len(t, store.runs, 1)
	assert.Equal(t, model.RunFailed, store.runs[0].Status)
}

func TestRun_GetFindingsFails(t *testing.T) {
	store := &memStore{getErr: errors.New("connection refused")}
	e, err := NewEngine(testConfig(), Deps{Store: store, Recorder: store, Completer: &fakeLLM{}})
	require.NoError(t, err)

	sum, err := e.Run(context.Background(), "tenant-a")
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, model.RunFailed, sum.Status)
	assert.Len(t, store.runs, 1)
}

func TestRun_NoFindingsIsEmptySuccess(t *testing.T) {
	store := &memStore{}
	completer := &fakeLLM{}
	e, err := NewEngine(testConfig(), Deps{Store: store, Completer: completer})
	require.NoError(t, err)

	sum, err := e.Run(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, model.RunSucceeded, sum.Status)
	assert.Zero(t, sum.ThemesPersisted)
	assert.Zero(t, completer.calls)
}

func TestRun_PersistFailureIsCounted(t *testing.T) {
	store := &memStore{findings: scenarioFindings()[:2], saveErr: errors.New("disk full")}
	e, err := NewEngine(testConfig(), Deps{Store: store, Completer: &fakeLLM{}})
	require.NoError(t, err)

	sum, err := e.Run(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.PersistFailures)
	assert.Zero(t, sum.ThemesPersisted)
	assert.Equal(t, model.RunSucceeded, sum.Status)
}

func TestRun_PriorityAlert(t *testing.T) {
	store := &memStore{findings: []*model.Finding{
		{ID: "F1", EntityID: "acme", Category: "security", Priority: true, EvidenceStrength: 9,
			Statement:      "contract cancellation threatened over outage",
			PrimaryQuote:   "we will cancel the contract if the outage happens again this quarter",
			SecondaryQuote: "our CFO is furious"},
		{ID: "F2", EntityID: "globex", Category: "ux", Statement: "dark mode requested"},
	}}
	e, err := NewEngine(testConfig(), Deps{Store: store, Completer: &fakeLLM{}})
	require.NoError(t, err)

	sum, err := e.Run(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.AlertsPersisted)
	require.Len(t, store.records, 1)
	alert, ok := store.records[0].(*model.Alert)
	require.True(t, ok)
	assert.Equal(t, "acme", alert.EntityID)
	assert.Equal(t, "we will cancel the contract if the outage happens again this quarter", alert.Quote)
}

func TestRun_EntitylessCountOnly(t *testing.T) {
	findings := scenarioFindings()[:2]
	for _, f := range findings {
		f.EntityID = ""
	}
	cfg := testConfig()
	cfg.Gate.AllowEntityless = true
	store := &memStore{findings: findings}
	e, err := NewEngine(cfg, Deps{Store: store, Completer: &fakeLLM{}})
	require.NoError(t, err)

	sum, err := e.Run(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.True(t, sum.EntitylessMode)
	assert.Empty(t, sum.ClustersRejected)
	assert.Equal(t, 1, sum.ThemesSynthesized)
	assert.Empty(t, sum.ThemesRejected)
	assert.Equal(t, 1, sum.ThemesPersisted)

	require.Len(t, store.records, 1)
	theme := store.records[0].(*model.Theme)
	// 两条支撑发现计 1 分，两条引用计 2 分
	assert.Equal(t, 3, theme.Score)
	assert.Equal(t, model.StrengthModerate, theme.Strength)
	assert.Empty(t, theme.EntityIDs)
}

func TestRun_EmptyResponsesAreMalformedNotFatal(t *testing.T) {
	store := &memStore{findings: scenarioFindings()[:2]}
	e, err := NewEngine(testConfig(), Deps{Store: store, Recorder: store, Completer: &fakeLLM{empty: true}})
	require.NoError(t, err)

	sum, err := e.Run(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, model.RunSucceeded, sum.Status)
	assert.Equal(t, map[model.Reason]int{model.ReasonMalformedOutput: 1}, sum.ThemesRejected)
	assert.Zero(t, sum.ThemesPersisted)
}

func TestNewEngine_RequiresDeps(t *testing.T) {
	_, err := NewEngine(testConfig(), Deps{Completer: &fakeLLM{}})
	assert.Error(t, err)
	_, err = NewEngine(testConfig(), Deps{Store: &memStore{}})
	assert.Error(t, err)
}
