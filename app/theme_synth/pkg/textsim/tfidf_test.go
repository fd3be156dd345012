package textsim

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("The turnaround time was TOO slow, a 2x delay!")
	want := []string{"turnaround", "time", "slow", "2x", "delay"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Tokenize() mismatch (-want +got):\n%s", diff)
	}
}

func TestFitTransform_NearDuplicates(t *testing.T) {
	vecs, err := NewVectorizer(1000).FitTransform([]string{
		"turnaround time was too slow",
		"transcription turnaround was slow",
	})
	if err != nil {
		t.Fatalf("FitTransform() error = %v", err)
	}
	sim := Cosine(vecs[0], vecs[1])
	// turnaround/slow 共享，time/transcription 各自独有
	if math.Abs(sim-0.5031) > 0.001 {
		t.Errorf("Cosine() = %.4f, want ~0.5031", sim)
	}
	if d := DistanceMatrix(vecs)[0][1]; d > 0.7 {
		t.Errorf("distance = %.4f, want <= 0.7", d)
	}
}

func TestFitTransform_EmptyVocabulary(t *testing.T) {
	_, err := NewVectorizer(10).FitTransform([]string{"", "the and of", "a"})
	if !errors.Is(err, ErrEmptyVocabulary) {
		t.Errorf("err = %v, want ErrEmptyVocabulary", err)
	}
}

func TestFitTransform_MaxFeaturesDeterministic(t *testing.T) {
	docs := []string{"alpha beta gamma", "alpha beta delta", "alpha epsilon"}
	v := NewVectorizer(2)
	if _, err := v.FitTransform(docs); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"alpha", "beta"}, v.vocab); diff != "" {
		t.Errorf("vocab mismatch (-want +got):\n%s", diff)
	}
}

func TestCosine_Bounds(t *testing.T) {
	vecs, err := NewVectorizer(0).FitTransform([]string{"pricing too expensive", "pricing too expensive", "speaker labels wrong"})
	if err != nil {
		t.Fatal(err)
	}
	if s := Cosine(vecs[0], vecs[1]); math.Abs(s-1) > 1e-9 {
		t.Errorf("identical docs cosine = %v, want 1", s)
	}
	if s := Cosine(vecs[0], vecs[2]); s != 0 {
		t.Errorf("disjoint docs cosine = %v, want 0", s)
	}
}

func TestCosineDense(t *testing.T) {
	if s := CosineDense([]float32{1, 0}, []float32{1, 0}); math.Abs(s-1) > 1e-9 {
		t.Errorf("same direction = %v", s)
	}
	if s := CosineDense([]float32{1, 0}, []float32{0, 1}); s != 0 {
		t.Errorf("orthogonal = %v", s)
	}
	if s := CosineDense([]float32{1}, []float32{1, 2}); s != 0 {
		t.Errorf("dimension mismatch = %v", s)
	}
}

func TestContainsWord(t *testing.T) {
	cases := []struct {
		s, word string
		want    bool
	}{
		{"the api is down", "api", true},
		{"rapid growth", "api", false},
		{"api", "api", true},
		{"slow turn-around times", "turn-around", true},
		{"a team", "a", true},
		{"turnaround is slow", "a", false},
		{"anything", "", false},
	}
	for _, c := range cases {
		if got := ContainsWord(c.s, c.word); got != c.want {
			t.Errorf("ContainsWord(%q, %q) = %v, want %v", c.s, c.word, got, c.want)
		}
	}
}
