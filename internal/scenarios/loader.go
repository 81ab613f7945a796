package scenarios

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/confidence"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/graph"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// File is the on-disk scenario collection format
type File struct {
	Scenarios []Spec `yaml:"scenarios"`
}

// Spec is one declarative scenario: an entity to investigate plus the
// expectations its outcome must meet
type Spec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	EntityID    string `yaml:"entity_id"`
	EntityType  string `yaml:"entity_type"`

	Expect Expect `yaml:"expect"`
}

// Expect declares outcome assertions. Zero values mean "don't care".
type Expect struct {
	Statuses     []string `yaml:"statuses"`
	RiskScore    string   `yaml:"risk_score"` // "null", "non_null" or empty
	MinRiskScore *float64 `yaml:"min_risk_score"`
	MaxRiskScore *float64 `yaml:"max_risk_score"`
	ConcernTypes []string `yaml:"concern_types"`
	Likelihoods  []string `yaml:"likelihoods"`
}

// Load reads declarative scenarios from a YAML file. Each runs the mock
// suite for its entity with the heuristic confidence engine.
func Load(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse scenario file %s: %w", path, err)
	}
	if len(file.Scenarios) == 0 {
		return nil, fmt.Errorf("scenario file %s defines no scenarios", path)
	}

	out := make([]Scenario, 0, len(file.Scenarios))
	for _, spec := range file.Scenarios {
		if spec.Name == "" || spec.EntityID == "" {
			return nil, fmt.Errorf("scenario file %s: every scenario needs a name and entity_id", path)
		}
		out = append(out, fromSpec(spec))
	}
	return out, nil
}

func fromSpec(spec Spec) Scenario {
	entityType := state.EntityType(spec.EntityType)
	if spec.EntityType == "" {
		entityType = state.EntityUserID
	}

	return Scenario{
		Name:        spec.Name,
		Description: spec.Description,
		Run: func(ctx context.Context) *Report {
			rep := &Report{Name: spec.Name, Description: spec.Description}

			deps, _ := mockDeps(spec.EntityID, confidence.NewEngine())
			exec := graph.NewExecutor(deps, config.ModeMock)
			st := newState("", spec.EntityID, entityType)

			o, err := exec.Run(ctx, st)
			rep.Outcome, rep.State, rep.RunErr = o, st, err
			if err != nil {
				rep.failf("run failed: %v", err)
				return rep
			}

			checkExpect(rep, spec.Expect)
			return rep
		},
	}
}

func checkExpect(rep *Report, expect Expect) {
	o, st := rep.Outcome, rep.State

	if len(expect.Statuses) > 0 && !containsString(expect.Statuses, string(o.Status)) {
		rep.failf("status %s not in %v", o.Status, expect.Statuses)
	}

	score := o.RiskAssessment.FinalRiskScore
	switch expect.RiskScore {
	case "null":
		if score != nil {
			rep.failf("risk score %.2f, want null", *score)
		}
	case "non_null":
		if score == nil {
			rep.failf("risk score null, want non-null")
		}
	}
	if expect.MinRiskScore != nil && score != nil && *score < *expect.MinRiskScore {
		rep.failf("risk score %.2f below minimum %.2f", *score, *expect.MinRiskScore)
	}
	if expect.MaxRiskScore != nil && score != nil && *score > *expect.MaxRiskScore {
		rep.failf("risk score %.2f above maximum %.2f", *score, *expect.MaxRiskScore)
	}

	for _, kind := range expect.ConcernTypes {
		if !hasConcern(st, state.ConcernType(kind)) {
			rep.failf("concern %s not recorded", kind)
		}
	}

	if len(expect.Likelihoods) > 0 && !containsString(expect.Likelihoods, o.RiskAssessment.FraudLikelihood) {
		rep.failf("likelihood %s not in %v", o.RiskAssessment.FraudLikelihood, expect.Likelihoods)
	}
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
