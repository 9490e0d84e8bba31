package classify

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ShayCichocki/swarm/internal/logging"
	"github.com/ShayCichocki/swarm/pkg/models"
)

func TestKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want PhaseSet
	}{
		{
			name: "investigate triggers research and api triggers design",
			text: "Investigate caching strategy for the API #infra @research",
			want: PhaseSet{Research: true, Design: true},
		},
		{
			name: "enumerated adds without action verb still research",
			text: "1. Add login page\n2. Add logout button",
			want: PhaseSet{Research: true, Execution: true},
		},
		{
			name: "fix is an action verb",
			text: "Fix the crash on startup",
			want: PhaseSet{Execution: true},
		},
		{
			name: "planning phrase",
			text: "Figure out the best approach to build the importer",
			want: PhaseSet{Planning: true, Execution: true},
		},
		{
			name: "inflected verbs match at word start",
			text: "Implementing retries and fixes for uploads",
			want: PhaseSet{Execution: true},
		},
		{
			name: "substring inside a word does not match",
			text: "Rapid prototype of the rebuild script",
			want: PhaseSet{Research: true},
		},
		{
			name: "case insensitive",
			text: "CREATE A NEW SCHEMA",
			want: PhaseSet{Design: true, Execution: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Keywords(tt.text); got != tt.want {
				t.Errorf("Keywords(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestPhaseSet_Phases(t *testing.T) {
	tests := []struct {
		set  PhaseSet
		want []models.Phase
	}{
		{PhaseSet{}, []models.Phase{models.PhaseReview}},
		{PhaseSet{Research: true, Design: true}, []models.Phase{models.PhaseResearch, models.PhasePlan, models.PhaseReview}},
		{PhaseSet{Research: true, Planning: true, Execution: true}, []models.Phase{models.PhaseResearch, models.PhasePlan, models.PhaseExecute, models.PhaseReview}},
	}
	for _, tt := range tests {
		if got := tt.set.Phases(); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%+v.Phases() = %v, want %v", tt.set, got, tt.want)
		}
	}
}

type fakeRunner struct {
	resp string
	err  error
	got  string
}

func (f *fakeRunner) RunWithSystem(_ context.Context, _, user string) (string, error) {
	f.got = user
	return f.resp, f.err
}

func TestLLMClassifier(t *testing.T) {
	t.Run("uses model answer", func(t *testing.T) {
		r := &fakeRunner{resp: `{"research": false, "planning": true, "design": false, "execution": true}`}
		c := NewLLMClassifier(r, logging.Nop())

		got, err := c.Classify(context.Background(), "Investigate things")
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		want := PhaseSet{Planning: true, Execution: true}
		if got != want {
			t.Errorf("Classify() = %+v, want %+v", got, want)
		}
		if r.got != "NOTE:\nInvestigate things" {
			t.Errorf("prompt = %q", r.got)
		}
	})

	t.Run("falls back on model error", func(t *testing.T) {
		c := NewLLMClassifier(&fakeRunner{err: errors.New("rate limited")}, logging.Nop())
		got, err := c.Classify(context.Background(), "Investigate caching")
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		if got != Keywords("Investigate caching") {
			t.Errorf("fallback = %+v", got)
		}
	})

	t.Run("falls back on garbage", func(t *testing.T) {
		c := NewLLMClassifier(&fakeRunner{resp: "I think research"}, logging.Nop())
		got, _ := c.Classify(context.Background(), "Build a cli")
		if got != Keywords("Build a cli") {
			t.Errorf("fallback = %+v", got)
		}
	})

	t.Run("nil runner", func(t *testing.T) {
		c := NewLLMClassifier(nil, nil)
		got, err := c.Classify(context.Background(), "Write docs")
		if err != nil || got != Keywords("Write docs") {
			t.Errorf("Classify() = %+v, %v", got, err)
		}
	})
}
