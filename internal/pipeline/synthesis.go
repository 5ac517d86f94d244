package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/config"
	"github.com/sells-group/dossier-cli/internal/model"
)

const synthesisSystem = `You are writing an intelligence brief for a venture capital relationship manager
about a portfolio company. Stick to facts found in the data. Never invent information to fill a gap;
say "Unable to confirm" instead. Write in a professional, concise tone. Respond with JSON only.`

const synthesisPrompt = `COMPANY DATA:
%s

TASK:
Write short narrative prose for each dossier section. Do not use markdown headings.
- identity: current name and online presence; explain any uncertainty or stealth status.
- overview: business model and stage, product and market, team backgrounds.
- funding: latest round, total funding and stage; say so plainly if none is public.
- recent_activity: recent news, launches and press mentions.
- quality_note: how reliable this dossier is and which specific items are uncertain or missing.
- improvements: 2-4 concrete next research actions.
Leave a field empty when the data has nothing for it.

Return ONLY a JSON object matching this schema:
%s`

// synthesisAnswer is the structured synthesis response.
type synthesisAnswer struct {
	Identity       string   `json:"identity"`
	Overview       string   `json:"overview"`
	Funding        string   `json:"funding"`
	RecentActivity string   `json:"recent_activity"`
	QualityNote    string   `json:"quality_note"`
	Improvements   []string `json:"improvements" jsonschema:"maxItems=5"`
}

var synthesisSchema = schemaOf(&synthesisAnswer{})

func (a *synthesisAnswer) validate() error {
	if strings.TrimSpace(a.Identity) == "" {
		return eris.New("pipeline: missing required field identity")
	}
	if strings.TrimSpace(a.QualityNote) == "" {
		return eris.New("pipeline: missing required field quality_note")
	}
	return nil
}

func (a *synthesisAnswer) narrative() *Narrative {
	return &Narrative{
		Identity:       a.Identity,
		Overview:       a.Overview,
		Funding:        a.Funding,
		RecentActivity: a.RecentActivity,
		QualityNote:    a.QualityNote,
		Improvements:   a.Improvements,
	}
}

// Synthesizer writes the dossier narrative and composes the document.
type Synthesizer struct {
	reasoner Reasoner
	model    config.StageModel
}

// NewSynthesizer creates a synthesis stage.
func NewSynthesizer(r Reasoner, m config.StageModel) *Synthesizer {
	return &Synthesizer{reasoner: r, model: m}
}

// Synthesize returns a dossier adapted to the confidence of its inputs. The
// reasoning call may fail; composition itself cannot.
func (s *Synthesizer) Synthesize(ctx context.Context, in SynthesisInput) (*model.Dossier, error) {
	prompt := fmt.Sprintf(synthesisPrompt, promptJSON(synthesisData(in)), synthesisSchema)
	resp, err := reason(ctx, s.reasoner, ReasonRequest{
		Stage:       StageSynthesis,
		Model:       s.model.Model,
		System:      synthesisSystem,
		Prompt:      prompt,
		Schema:      synthesisSchema,
		MaxTokens:   s.model.MaxTokens,
		Temperature: floatPtr(0.3),
	})
	if err != nil {
		return nil, err
	}
	ans, err := decodeAnswer[synthesisAnswer](resp.Text)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: synthesis answer")
	}

	d := ComposeDossier(in, ans.narrative())
	zap.L().Info("pipeline: dossier synthesized",
		zap.String("callsign", in.Clues.Callsign),
		zap.Float64("confidence", d.AggregateConfidence),
		zap.Int("gaps", len(d.Gaps)),
	)
	return d, nil
}

// synthesisData is the prompt view of the input. Skipped and failed stages
// appear as their outcome state so the model knows why data is missing.
func synthesisData(in SynthesisInput) map[string]any {
	data := map[string]any{
		"dba":    in.Clues.DisplayName(),
		"owners": in.Clues.Owners,
	}
	if in.Identity != nil {
		data["identity"] = in.Identity
	} else {
		data["identity"] = "unavailable"
	}
	data["funding"] = outcomeView(in.Funding)
	data["profile"] = outcomeView(in.Profile)

	if b := in.News.Get(); b != nil {
		items := b.Items
		if len(items) > maxNewsItems {
			items = items[:maxNewsItems]
		}
		data["news_items"] = items
		data["people_background"] = b.People
	} else {
		data["news_items"] = outcomeView(in.News)
	}
	return data
}

func outcomeView[T any](o model.Outcome[T]) any {
	if v := o.Get(); v != nil {
		return v
	}
	view := map[string]string{"state": string(o.State)}
	if o.State == "" {
		view["state"] = "not_run"
	}
	if o.Reason != "" {
		view["reason"] = o.Reason
	}
	return view
}
