package skills

import (
	"context"
	"fmt"

	"github.com/B-A-M-N/NERVA/internal/workflow"
)

type calendarFields struct {
	Title string `json:"title"`
	Date  string `json:"date"`
	Time  string `json:"time"`
}

// CalendarSkill creates Google Calendar events from natural language.
func CalendarSkill() *Skill {
	return &Skill{
		Name:        "calendar",
		Description: "Create a calendar event from the utterance.",
		Keywords:    []string{"calendar", "schedule", "meeting", "appointment", "event"},
		Build:       buildCalendarDag,
	}
}

func buildCalendarDag(env *Env, utterance string) (*workflow.Dag, error) {
	dag := workflow.NewDag("calendar")

	dag.MustAdd("extract_fields", nil, func(ctx context.Context, rc *workflow.RunContext) error {
		prompt := fmt.Sprintf(`Extract the calendar event from this request:
%q
Reply with one JSON object: {"title": "...", "date": "YYYY-MM-DD", "time": "HH:MM"}.
Use empty strings for fields the request does not specify.`, utterance)
		var fields calendarFields
		if err := extractFields(ctx, env.LLM, prompt, &fields); err != nil {
			return err
		}
		if fields.Title == "" {
			fields.Title = utterance
		}
		rc.SetArtifact("calendar_fields", fields)
		return nil
	})

	dag.MustAdd("create_event", []string{"extract_fields"}, func(ctx context.Context, rc *workflow.RunContext) error {
		v, _ := rc.Artifact("calendar_fields")
		fields, ok := v.(calendarFields)
		if !ok {
			fields = calendarFields{Title: utterance}
		}
		return runPlaybook(ctx, env, calendarEventPlaybook(fields), rc)
	})

	dag.MustAdd("summarize", []string{"create_event"}, func(ctx context.Context, rc *workflow.RunContext) error {
		v, _ := rc.Artifact("calendar_fields")
		fields, _ := v.(calendarFields)
		rc.SetOutput("summary", fmt.Sprintf("Created calendar event %q on %s %s", fields.Title, fields.Date, fields.Time))
		return nil
	})

	return dag, nil
}
