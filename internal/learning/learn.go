package learning

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/basarometer/sourcectl/internal/db"
	"github.com/basarometer/sourcectl/internal/heuristics"
	"github.com/basarometer/sourcectl/internal/model"
	"github.com/basarometer/sourcectl/internal/patterns"
)

// Discovery is a successfully validated candidate offered to the learner.
type Discovery struct {
	Name              string
	URL               string
	Categories        []string
	QualityIndicators []string
	Confidence        float64
}

// Multipliers for weaker evidence.
const (
	domainWeight  = 0.8
	qualityWeight = 0.7
)

// Proposal is a consolidated candidate pattern.
type Proposal struct {
	Role       model.PatternRole `json:"role"`
	Value      string            `json:"value"`
	Confidence float64           `json:"confidence"`
	Evidence   int               `json:"evidence"`
}

// LearnResult summarizes a learning pass.
type LearnResult struct {
	Proposed int           `json:"proposed"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Summary  model.Summary `json:"summary"`
}

type observation struct {
	role       model.PatternRole
	value      string
	confidence float64
}

// Propose extracts name, URL and content terms from the discoveries and
// averages the confidence of each distinct term. Terms whose average does not
// exceed minConfidence are dropped. Output is sorted by role then value.
func Propose(ds []Discovery, t *heuristics.Tables, minConfidence float64) []Proposal {
	var obs []observation
	for _, d := range ds {
		obs = append(obs, nameObservations(d, t)...)
		obs = append(obs, urlObservations(d, t)...)
		for _, c := range d.Categories {
			obs = append(obs, observation{model.RoleContent, heuristics.Normalize(c), d.Confidence})
		}
		for _, q := range d.QualityIndicators {
			obs = append(obs, observation{model.RoleContent, heuristics.Normalize(q), d.Confidence * qualityWeight})
		}
	}

	type key struct {
		role  model.PatternRole
		value string
	}
	type agg struct {
		sum   float64
		count int
	}
	byKey := make(map[key]*agg)
	for _, o := range obs {
		if o.value == "" {
			continue
		}
		k := key{o.role, o.value}
		a, ok := byKey[k]
		if !ok {
			a = &agg{}
			byKey[k] = a
		}
		a.sum += o.confidence
		a.count++
	}

	var out []Proposal
	for k, a := range byKey {
		avg := a.sum / float64(a.count)
		if avg <= minConfidence {
			continue
		}
		out = append(out, Proposal{Role: k.role, Value: k.value, Confidence: avg, Evidence: a.count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func nameObservations(d Discovery, t *heuristics.Tables) []observation {
	name := heuristics.Normalize(d.Name)
	if name == "" {
		return nil
	}
	_, hits := t.Name.Terms.Score(name)
	out := make([]observation, 0, len(hits))
	for _, h := range hits {
		out = append(out, observation{model.RoleName, h, d.Confidence})
	}
	return out
}

func urlObservations(d Discovery, t *heuristics.Tables) []observation {
	u, err := url.Parse(strings.TrimSpace(d.URL))
	if err != nil || u.Host == "" {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	text := host + strings.ToLower(u.EscapedPath())

	_, hits := t.URL.Terms.Score(text)
	out := make([]observation, 0, len(hits)+1)
	for _, h := range hits {
		out = append(out, observation{model.RoleURL, h, d.Confidence})
	}
	if dom, ok := t.MatchDomain(host); ok {
		out = append(out, observation{model.RoleURL, dom.Suffix, d.Confidence * domainWeight})
	}
	return out
}

// LearnFromDiscoveries saves the proposals derived from ds. Each proposal is
// stored independently; failures are counted in the summary.
func (l *Learner) LearnFromDiscoveries(ctx context.Context, ds []Discovery) (*LearnResult, error) {
	proposals := Propose(ds, l.tables, l.cfg.LearnMinConfidence)
	res := &LearnResult{Proposed: len(proposals)}

	var batch model.BatchResult
	for _, p := range proposals {
		id := string(p.Role) + ":" + p.Value
		inserted, err := l.save(ctx, p)
		if err != nil {
			l.log.Warn("saving learned pattern failed", zap.String("pattern", id), zap.Error(err))
			batch.Fail(id, err)
			continue
		}
		if inserted {
			res.Created++
			batch.Succeed(id, "created")
		} else {
			res.Updated++
			batch.Succeed(id, "updated")
		}
	}
	res.Summary = batch.Summarize()

	l.log.Info("learned from discoveries",
		zap.Int("discoveries", len(ds)),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Summary.Failed),
	)
	return res, nil
}

func (l *Learner) save(ctx context.Context, p Proposal) (bool, error) {
	ctx, cancel := db.WithTimeout(ctx, l.timeout)
	defer cancel()

	return l.store.UpsertLearned(ctx, patterns.Learned{
		Type:         model.PatternKeyword,
		Value:        p.Value,
		Role:         p.Role,
		BusinessType: l.businessType,
		Confidence:   model.ClampScore(p.Confidence * 100),
		Success:      p.Confidence > l.cfg.SuccessConfidence,
	})
}
