// Package summarize asks a language model for a short narrative of a
// completed cycle.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-ingest/internal/model"
	"github.com/sells-group/market-ingest/pkg/anthropic"
)

// Analysis is the structured reply requested from the model.
type Analysis struct {
	Summary    string   `json:"summary" yaml:"summary"`
	Regime     string   `json:"regime" yaml:"regime"`
	KeyDrivers []string `json:"key_drivers,omitempty" yaml:"key_drivers,omitempty"`
}

const systemPrompt = `You are a markets desk assistant. You receive one reading of a volatility index aggregated from several financial websites, plus recent headlines. Reply with a single JSON object and nothing else:
{"summary": "<two sentences>", "regime": "<calm|normal|elevated|stressed>", "key_drivers": ["<short phrase>", ...]}`

const maxHeadlines = 15

// Summarizer turns cycles into Analyses.
type Summarizer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// New returns a Summarizer for modelID with the given reply budget.
func New(client anthropic.Client, modelID string, maxTokens int64) *Summarizer {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Summarizer{client: client, model: modelID, maxTokens: maxTokens}
}

// Analyze returns the model's view of c. Only transport failures are
// errors; unreadable replies degrade to a plain-text summary.
func (s *Summarizer) Analyze(ctx context.Context, c *model.Cycle) (Analysis, error) {
	if !c.Result.HasConsensus() {
		return Analysis{Summary: "No source produced a reading this cycle.", Regime: RegimeUnknown}, nil
	}

	temp := 0.2
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		System:      systemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: BuildPrompt(c)}},
		Temperature: &temp,
	})
	if err != nil {
		return Analysis{}, eris.Wrap(err, "summarize: create message")
	}
	resp.Usage.LogCost(s.model, "cycle_summary")

	a, stage := ParseAnalysis(resp.Text())
	if stage != StageDirect {
		zap.L().Debug("summarize: reply needed lenient parsing",
			zap.String("cycle", c.ID),
			zap.String("stage", string(stage)),
		)
	}
	return a, nil
}

// BuildPrompt renders the cycle as the user message.
func BuildPrompt(c *model.Cycle) string {
	var b strings.Builder
	r := c.Result
	fmt.Fprintf(&b, "Observed at: %s\n", c.StartedAt.UTC().Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "Consensus value: %.2f (reliability %s, %d sources, spread %.2f-%.2f)\n",
		r.ConsensusValue, r.Reliability, r.SampleCount, r.Spread.Min, r.Spread.Max)
	if r.Band != "" {
		fmt.Fprintf(&b, "Configured band: %s\n", r.Band)
	}

	b.WriteString("\nPer source:\n")
	for _, sr := range r.PerSource {
		switch {
		case sr.Value == nil:
			fmt.Fprintf(&b, "- %s: no value (%s)\n", sr.SourceID, sr.Error)
		case sr.ChangePercent != nil:
			fmt.Fprintf(&b, "- %s: %.2f (%+.2f%%)\n", sr.SourceID, *sr.Value, *sr.ChangePercent)
		default:
			fmt.Fprintf(&b, "- %s: %.2f\n", sr.SourceID, *sr.Value)
		}
	}

	if len(c.NewItems) > 0 {
		b.WriteString("\nHeadlines:\n")
		for i, it := range c.NewItems {
			if i == maxHeadlines {
				break
			}
			fmt.Fprintf(&b, "- %s (%s)\n", it.Title, it.SourceID)
		}
	}
	return b.String()
}
