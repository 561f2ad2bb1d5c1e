package conversion

import (
	"context"
	"fmt"

	"ludoforge/internal/analyzer"
)

// Request is what the Conversion Pipeline hands to an LLM collaborator: the
// source document plus the affordances the analysis report says the output
// must support (spec §4.3 step 4, "adaptive prompt").
type Request struct {
	SourceDocument string
	Report         analyzer.Report
	Affordances    []string
}

// LLM is the narrow interface the pipeline depends on. Spec §1 frames actual
// LLM invocation as an external collaborator, out of scope for this system;
// StubLLM is the in-repo implementation, and any real provider integration
// (OpenAI, Anthropic, a local model server) implements this same interface
// without the pipeline knowing the difference.
type LLM interface {
	Convert(ctx context.Context, req Request) (string, error)
}

// StubLLM returns the source document unchanged (after marker instrumentation
// has already run on it upstream), standing in for an LLM that would
// otherwise rewrite it to add the multiplayer affordances in req.Affordances.
// It never truncates or corrupts structure, so it always satisfies the
// pipeline's document-shape checks — useful for exercising the rest of the
// pipeline without a network-calling LLM dependency.
type StubLLM struct{}

func (StubLLM) Convert(_ context.Context, req Request) (string, error) {
	if req.SourceDocument == "" {
		return "", fmt.Errorf("stub LLM: empty source document")
	}
	return req.SourceDocument, nil
}

var _ LLM = StubLLM{}

// RequiredAffordances derives the prompt's affordance list from an analysis
// report (spec §4.3 step 4: turn arbitration, board synchronization,
// per-player scoring, real-time reconciliation, lobby controls).
func RequiredAffordances(report analyzer.Report) []string {
	var affordances []string
	if report.Mechanics.Turns {
		affordances = append(affordances, "turn arbitration")
	}
	if report.Mechanics.Board {
		affordances = append(affordances, "board synchronization")
	}
	if report.Mechanics.Score {
		affordances = append(affordances, "per-player scoring")
	}
	if report.Mechanics.Realtime {
		affordances = append(affordances, "real-time reconciliation")
	}
	affordances = append(affordances, "lobby controls")
	affordances = append(affordances, "communicate only via the Event Bridge and postMessage envelopes")
	return affordances
}
