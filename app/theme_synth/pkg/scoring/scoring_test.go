package scoring

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/config"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
)

func newScorer() *Scorer {
	return NewScorer(config.Default().Scoring)
}

func TestClusterConfidence(t *testing.T) {
	s := newScorer()
	long := strings.Repeat("q", 60)

	tests := []struct {
		name    string
		members []*model.Finding
		want    float64
	}{
		{
			name: "two entities no quotes",
			members: []*model.Finding{
				{ID: "F1", EntityID: "a", EvidenceStrength: 5},
				{ID: "F2", EntityID: "b", EvidenceStrength: 5},
			},
			// 0.4*2/4 + 0.5*0.3 + 0.2*2/6
			want: 0.2 + 0.15 + 0.2*2.0/6,
		},
		{
			name: "saturated with both quote slots",
			members: func() []*model.Finding {
				var out []*model.Finding
				for i := 0; i < 8; i++ {
					out = append(out, &model.Finding{
						ID: fmt.Sprintf("F%d", i), EntityID: fmt.Sprintf("e%d", i),
						EvidenceStrength: 10, PrimaryQuote: long, SecondaryQuote: long,
					})
				}
				return out
			}(),
			want: 1,
		},
		{name: "empty", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.ClusterConfidence(&model.Cluster{Members: tt.members})
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestClusterConfidence_Bounded(t *testing.T) {
	s := newScorer()
	c := &model.Cluster{Members: []*model.Finding{
		{ID: "F1", EntityID: "a", EvidenceStrength: 42},
		{ID: "F2", EntityID: "b", EvidenceStrength: -3},
	}}
	got := s.ClusterConfidence(c)
	assert.GreaterOrEqual(t, got, 0.0)
	assert.LessOrEqual(t, got, 1.0)
}

func TestThemeScore(t *testing.T) {
	s := newScorer()
	long := strings.Repeat("x", 60)

	tests := []struct {
		name     string
		draft    model.ThemeDraft
		want     int
		strength model.Strength
	}{
		{
			name:     "bare two entity theme",
			draft:    model.ThemeDraft{Statement: "Turnaround is slow.", EntityIDs: []string{"a", "b"}},
			want:     1,
			strength: model.StrengthWeak,
		},
		{
			name: "quotes lift to moderate",
			draft: model.ThemeDraft{
				Statement:    "Turnaround is slow.",
				EntityIDs:    []string{"a", "b"},
				PrimaryQuote: "it took forever", SecondaryQuote: "we waited days",
			},
			want:     3,
			strength: model.StrengthModerate,
		},
		{
			name: "everything",
			draft: model.ThemeDraft{
				Statement:    strings.Repeat("Customers at acme wait 3 days for transcripts. ", 3),
				EntityIDs:    []string{"acme", "b", "c", "d"},
				PrimaryQuote: long, SecondaryQuote: "short",
			},
			want:     8,
			strength: model.StrengthStrong,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, strength := s.ThemeScore(&tt.draft, nil)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.strength, strength)
		})
	}
}

func TestThemeScore_NamesBackingEntity(t *testing.T) {
	s := newScorer()
	d := &model.ThemeDraft{Statement: "Globex teams report slow turnaround.", EntityIDs: []string{"x", "y"}}
	got, _ := s.ThemeScore(d, []*model.Finding{{ID: "F1", EntityID: "globex"}})
	assert.Equal(t, 2, got)
}

func TestThemeScore_AlertIgnoresSecondaryQuote(t *testing.T) {
	s := newScorer()
	d := &model.ThemeDraft{
		Kind:           model.KindAlert,
		Statement:      "Turnaround is slow.",
		EntityIDs:      []string{"x"},
		PrimaryQuote:   "it took forever",
		SecondaryQuote: "we waited days",
	}
	got, _ := s.ThemeScore(d, nil)
	assert.Equal(t, 1, got)

	d.Kind = model.KindTheme
	d.EntityIDs = []string{"x", "y"}
	got, _ = s.ThemeScore(d, nil)
	assert.Equal(t, 3, got)
}

func TestThemeScore_CountOnlyUsesFindingCount(t *testing.T) {
	d := &model.ThemeDraft{Statement: "Turnaround is slow.", SupportingFindingIDs: []string{"F1", "F2", "F3"}}

	got, _ := newScorer().ThemeScore(d, nil)
	assert.Equal(t, 0, got)

	got, _ = newScorer().CountOnly().ThemeScore(d, nil)
	assert.Equal(t, 2, got)
}

func TestThemeScore_Idempotent(t *testing.T) {
	s := newScorer()
	d := &model.ThemeDraft{
		Statement:    "Teams at 4 companies wait for transcripts.",
		EntityIDs:    []string{"a", "b", "c"},
		PrimaryQuote: "slow",
	}
	first, fs := s.ThemeScore(d, nil)
	for i := 0; i < 3; i++ {
		got, gs := s.ThemeScore(d, nil)
		assert.Equal(t, first, got)
		assert.Equal(t, fs, gs)
	}
	assert.GreaterOrEqual(t, first, 0)
	assert.LessOrEqual(t, first, MaxThemeScore)
}
