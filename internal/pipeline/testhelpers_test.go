package pipeline

import (
	"time"

	"github.com/sells-group/dossier-cli/internal/config"
	"github.com/sells-group/dossier-cli/internal/model"
)

func stageModel(provider string) config.StageModel {
	return config.StageModel{Provider: provider, Model: "test-model", MaxTokens: 512}
}

// fastPolicy is the default policy with millisecond backoff.
func fastPolicy() Policy {
	p := DefaultPolicy()
	p.Backoff.InitialBackoff = time.Millisecond
	p.Backoff.MaxBackoff = time.Millisecond
	p.Backoff.JitterFraction = 0
	return p
}

func textResponse(text string, citations ...string) *ReasonResponse {
	return &ReasonResponse{
		Text:         text,
		Citations:    citations,
		InputTokens:  100,
		OutputTokens: 40,
		Provider:     "perplexity",
		Model:        "test-model",
	}
}

func aaloClues() model.CompanyClues {
	return model.NewCompanyClues("AALO", "Aalo Atomics", []string{"Matt Loszak"}, "aalo.com", "")
}

func identityAt(confidence float64, status model.IdentityStatus) model.CompanyIdentity {
	return model.CompanyIdentity{
		CurrentDomain: "aaloatomics.ai",
		Website:       "https://aaloatomics.ai",
		Status:        status,
		Confidence:    confidence,
		Reasoning:     "test identity",
		EvidencePath:  model.EvidenceNameSearch,
		Sources:       []string{"https://aaloatomics.ai"},
	}
}
