package phases

import (
	"encoding/json"
	"fmt"

	"github.com/pandora-run/pandora/pkg/models"
)

// Planner produces the plan the Pipeline Scheduler routes on.
type Planner struct {
	Query  string
	Digest ContextDigest
}

func (Planner) Name() models.PhaseName { return models.PhasePlanner }

func (Planner) RequiredSections() []models.Section {
	return []models.Section{models.SectionContext}
}

func (p Planner) BuildPrompt(_ models.TurnID, sections map[models.Section]string) (string, string) {
	system := "You are the planner stage of a turn pipeline. Decide the goal, " +
		"approach, and where the turn routes next. Respond with ONLY a JSON " +
		`object {"goal":"...","pattern":"...","approach":"...",` +
		`"likely_tools":["..."],"route":"executor|synthesis|clarify"}. ` +
		`pattern may be empty when no named research pattern applies.`
	user := fmt.Sprintf("Query: %s\nContext digest: %s\n\ncontext.md so far:\n%s\n",
		p.Query, p.Digest.Digest, sections[models.SectionContext])
	return system, user
}

func (Planner) Parse(raw string) (models.Plan, error) {
	var wire struct {
		Goal        string   `json:"goal"`
		Pattern     string   `json:"pattern"`
		Approach    string   `json:"approach"`
		LikelyTools []string `json:"likely_tools"`
		Route       string   `json:"route"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &wire); err != nil {
		return models.Plan{}, fmt.Errorf("planner: parse response: %w", err)
	}
	route := models.Route(wire.Route)
	switch route {
	case models.RouteExecutor, models.RouteSynthesis, models.RouteClarify:
	default:
		return models.Plan{}, fmt.Errorf("planner: unknown route %q", wire.Route)
	}
	return models.Plan{
		Goal:        wire.Goal,
		Pattern:     wire.Pattern,
		Approach:    wire.Approach,
		LikelyTools: wire.LikelyTools,
		Route:       route,
	}, nil
}

func (Planner) Format(r models.Plan) string {
	return fmt.Sprintf("\ngoal: %s\npattern: %s\napproach: %s\nlikely_tools: %v\nroute: %s\n",
		r.Goal, r.Pattern, r.Approach, r.LikelyTools, r.Route)
}

func (Planner) Confidence(models.Plan) *float64 { return nil }
