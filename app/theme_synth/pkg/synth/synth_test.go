package synth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/config"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/llm"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
)

// scriptedCompleter 依次返回预设响应，用尽后重复最后一个
type scriptedCompleter struct {
	mu        sync.Mutex
	responses []response
	calls     int
	users     []string
}

type response struct {
	out string
	err error
}

func (s *scriptedCompleter) Complete(_ context.Context, _, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, user)
	r := s.responses[min(s.calls, len(s.responses)-1)]
	s.calls++
	return r.out, r.err
}

func testConfig(mode string) config.SynthesisConfig {
	cfg := config.Default().Synthesis
	cfg.Mode = mode
	cfg.BaseDelayMS = 1
	return cfg
}

func testCluster() *model.Cluster {
	return &model.Cluster{
		ID:       "C001",
		Category: "turnaround",
		Origin:   model.OriginCategory,
		Members: []*model.Finding{
			{ID: "F1", EntityID: "acme", Category: "turnaround", Statement: "turnaround time was too slow", EvidenceStrength: 6},
			{ID: "F2", EntityID: "globex", Category: "turnaround", Statement: "transcription turnaround was slow", EvidenceStrength: 8},
		},
	}
}

const validJSON = `{"title": "Slow turnaround", "statement": "Customers wait too long for transcripts. Work stalls while they wait.", "classification": "threat", "supporting_finding_ids": ["F1", "F2"]}`

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		lenient bool
		reason  model.Reason
	}{
		{name: "strict", raw: validJSON},
		{name: "prose and fences", raw: "Here is the theme:\n```json\n" + validJSON + "\n```\nThanks!", lenient: true},
		{name: "trailing comma", raw: `{"title": "T", "statement": "S.", "classification": "Threat", "supporting_finding_ids": ["F1",],}`, lenient: true},
		{name: "unquoted keys", raw: `{title: "T", statement: "S.", classification: "advantage", supporting_finding_ids: ["F1"]}`, lenient: true},
		{name: "no object", raw: "I cannot help with that.", reason: model.ReasonMalformedOutput},
		{name: "bad classification", raw: `{"title": "T", "statement": "S.", "classification": "risk", "supporting_finding_ids": ["F1"]}`, reason: model.ReasonMalformedOutput},
		{name: "no ids", raw: `{"title": "T", "statement": "S.", "classification": "threat", "supporting_finding_ids": []}`, reason: model.ReasonMalformedOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			switch res := Decode(tt.raw).(type) {
			case ParseSuccess:
				require.Empty(t, tt.reason, "unexpected success")
				assert.Equal(t, tt.lenient, res.Lenient)
				assert.NotEmpty(t, res.Draft.Title)
			case ParseFailure:
				require.NotEmpty(t, tt.reason, "unexpected failure: %v", res.Err)
				assert.Equal(t, tt.reason, res.Reason)
			}
		})
	}
}

func TestDecode_NormalizesIDsAndClassification(t *testing.T) {
	res, ok := Decode(`{"title": " T ", "statement": "S.", "classification": "Opportunity", "supporting_finding_ids": ["F1", "F1", " F2 "]}`).(ParseSuccess)
	require.True(t, ok)
	assert.Equal(t, "T", res.Draft.Title)
	assert.Equal(t, "opportunity", res.Draft.Classification)
	assert.Equal(t, []string{"F1", "F2"}, res.Draft.SupportingFindingIDs)
}

func TestBuildPrompt(t *testing.T) {
	c := testCluster()
	c.Confidence = 0.6
	system, user := BuildPrompt(c, 1)
	assert.NotEmpty(t, system)
	assert.Contains(t, user, "Entities (2): acme, globex")
	assert.Contains(t, user, "Mean impact: 7.0/10")
	assert.Contains(t, user, "Confidence: 0.60")
	assert.Contains(t, user, "Cross-entity: true")
	assert.Contains(t, user, "[F2]")
	assert.NotContains(t, user, "[F1]", "sample is capped and ordered by impact")
}

func TestSingleCall_Success(t *testing.T) {
	c := &scriptedCompleter{responses: []response{{out: validJSON}}}
	out := New(testConfig("single"), c, nil).Synthesize(context.Background(), testCluster())

	require.NotNil(t, out.Draft, out.Detail)
	assert.Equal(t, "C001", out.Draft.ClusterID)
	assert.Equal(t, model.KindTheme, out.Draft.Kind)
	assert.Equal(t, model.ClassThreat, out.Draft.Classification)
	assert.Equal(t, []string{"acme", "globex"}, out.Draft.EntityIDs)
	assert.Empty(t, out.Draft.PrimaryQuote)
	assert.Equal(t, 1, out.Calls)
}

func TestSingleCall_UnknownReference(t *testing.T) {
	raw := `{"title": "T", "statement": "S. S.", "classification": "threat", "supporting_finding_ids": ["F1", "F999"]}`
	c := &scriptedCompleter{responses: []response{{out: raw}}}
	out := New(testConfig("single"), c, nil).Synthesize(context.Background(), testCluster())

	assert.Nil(t, out.Draft)
	assert.Equal(t, model.ReasonInvalidReference, out.Reason)
	assert.Contains(t, out.Detail, "F999")
}

func TestSingleCall_TimeoutsExhaustRetries(t *testing.T) {
	c := &scriptedCompleter{responses: []response{{err: context.DeadlineExceeded}}}
	out := New(testConfig("single"), c, nil).Synthesize(context.Background(), testCluster())

	assert.True(t, out.Unavailable())
	assert.Equal(t, model.ReasonSynthesisUnavailable, out.Reason)
	assert.Equal(t, 3, out.Calls, "one call plus two retries")
}

func TestSingleCall_TransientThenSuccess(t *testing.T) {
	c := &scriptedCompleter{responses: []response{
		{err: errors.New("status code: 429, Too Many Requests")},
		{out: validJSON},
	}}
	out := New(testConfig("single"), c, nil).Synthesize(context.Background(), testCluster())
	require.NotNil(t, out.Draft, out.Detail)
	assert.Equal(t, 2, out.Calls)
}

func TestSingleCall_PermanentErrorNotRetried(t *testing.T) {
	c := &scriptedCompleter{responses: []response{{err: errors.New("invalid api key")}}}
	out := New(testConfig("single"), c, nil).Synthesize(context.Background(), testCluster())
	assert.True(t, out.Unavailable())
	assert.Equal(t, 1, out.Calls)
}

func TestSingleCall_EmptyResponseIsMalformed(t *testing.T) {
	c := &scriptedCompleter{responses: []response{{err: llm.ErrEmptyResponse}}}
	out := New(testConfig("single"), c, nil).Synthesize(context.Background(), testCluster())

	assert.Nil(t, out.Draft)
	assert.False(t, out.Unavailable())
	assert.Equal(t, model.ReasonMalformedOutput, out.Reason)
	assert.Equal(t, 1, out.Calls)
}

func TestMultiStep_EmptyResponseIsMalformed(t *testing.T) {
	c := &scriptedCompleter{responses: []response{{err: llm.ErrEmptyResponse}}}
	out := New(testConfig("multi_step"), c, nil).Synthesize(context.Background(), testCluster())

	assert.Equal(t, model.ReasonMalformedOutput, out.Reason)
	assert.False(t, out.Unavailable())
}

func TestSingleCall_LenientFlag(t *testing.T) {
	c := &scriptedCompleter{responses: []response{{out: "```json\n" + validJSON + "\n```"}}}
	out := New(testConfig("single"), c, nil).Synthesize(context.Background(), testCluster())
	require.NotNil(t, out.Draft)
	assert.True(t, out.Lenient)
}

func TestSingleCall_AlertPrompt(t *testing.T) {
	cl := testCluster()
	cl.Origin = model.OriginAlert
	cl.Members = cl.Members[:1]
	raw := `{"title": "T", "statement": "S. S.", "classification": "threat", "supporting_finding_ids": ["F1"]}`
	c := &scriptedCompleter{responses: []response{{out: raw}}}

	out := New(testConfig("single"), c, nil).Synthesize(context.Background(), cl)
	require.NotNil(t, out.Draft)
	assert.Equal(t, model.KindAlert, out.Draft.Kind)
	assert.Contains(t, c.users[0], "single customer")
}

func TestMultiStep(t *testing.T) {
	c := &scriptedCompleter{responses: []response{
		{out: `{"pattern": "slow transcripts", "classification": "threat", "supporting_finding_ids": ["F1", "F2"]}`},
		{out: `{"title": "Slow turnaround"}`},
		{out: "Sure! {\"statement\": \"Transcripts arrive late. Teams lose a day.\",}"},
		{out: `{"quote_finding_ids": ["F2"]}`},
	}}
	out := New(testConfig("multi_step"), c, nil).Synthesize(context.Background(), testCluster())

	require.NotNil(t, out.Draft, out.Detail)
	assert.Equal(t, 4, out.Calls)
	assert.True(t, out.Lenient)
	assert.Equal(t, "Slow turnaround", out.Draft.Title)
	assert.Equal(t, []string{"F2"}, out.Draft.QuoteSourceIDs)
	assert.True(t, strings.Contains(c.users[3], "Statement: Transcripts arrive late."))
}

func TestMultiStep_BadQuoteReference(t *testing.T) {
	c := &scriptedCompleter{responses: []response{
		{out: `{"pattern": "p", "classification": "threat", "supporting_finding_ids": ["F1"]}`},
		{out: `{"title": "T"}`},
		{out: `{"statement": "S. S."}`},
		{out: `{"quote_finding_ids": ["F42"]}`},
	}}
	out := New(testConfig("multi_step"), c, nil).Synthesize(context.Background(), testCluster())
	assert.Nil(t, out.Draft)
	assert.Equal(t, model.ReasonInvalidReference, out.Reason)
}
