package skills

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/B-A-M-N/NERVA/internal/browser"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
	"github.com/B-A-M-N/NERVA/internal/playbook"
	"github.com/B-A-M-N/NERVA/internal/vision"
	"github.com/B-A-M-N/NERVA/internal/workflow"
)

type lookupFields struct {
	Query string `json:"query"`
}

// lookupTargetPattern strips the command prefix when the model is down:
// "look up the phone number for Joe's Pizza" -> "Joe's Pizza".
var lookupTargetPattern = regexp.MustCompile(`(?i)(?:look\s*up|find|what(?:'s| is))\s+(?:the\s+)?(?:phone\s+)?(?:number\s+)?(?:for|of)?\s*(.+)$`)

// LookupSkill finds a phone number for a business or person.
func LookupSkill() *Skill {
	return &Skill{
		Name:        "lookup",
		Description: "Look up a phone number on the web.",
		Keywords:    []string{"phone", "number", "look up", "lookup"},
		Build:       buildLookupDag,
	}
}

func buildLookupDag(env *Env, utterance string) (*workflow.Dag, error) {
	dag := workflow.NewDag("lookup")

	dag.MustAdd("extract_query", nil, func(ctx context.Context, rc *workflow.RunContext) error {
		prompt := fmt.Sprintf(`Extract the business or person to look up from this request:
%q
Reply with one JSON object: {"query": "..."}.`, utterance)
		var fields lookupFields
		if err := extractFields(ctx, env.LLM, prompt, &fields); err != nil {
			// Model trouble degrades to the regex fallback.
			fields.Query = fallbackLookupQuery(utterance)
		}
		if strings.TrimSpace(fields.Query) == "" {
			fields.Query = fallbackLookupQuery(utterance)
		}
		rc.SetArtifact("lookup_query", fields.Query)
		return nil
	})

	dag.MustAdd("find_number", []string{"extract_query"}, func(ctx context.Context, rc *workflow.RunContext) error {
		query := artifactString(rc, "lookup_query")
		return withBrowser(env, func(driver browser.Driver) error {
			runner := playbook.NewRunner(driver, env.Logger)
			report, err := runner.Run(ctx, lookupPlaybook(query+" phone number"), rc)
			if report != nil {
				rc.SetArtifact("lookup_report", report)
			}
			if err != nil {
				return err
			}
			phone, err := vision.ExtractPhone(ctx, driver, query)
			if err != nil {
				return err
			}
			rc.SetArtifact("phone", phone)
			return nil
		})
	})

	dag.MustAdd("summarize", []string{"find_number"}, func(ctx context.Context, rc *workflow.RunContext) error {
		phone := artifactString(rc, "phone")
		query := artifactString(rc, "lookup_query")
		if phone == "" {
			return nerrors.NotFound("skills.lookup", "no phone number found for "+query)
		}
		rc.SetOutput("answer", phone)
		rc.SetOutput("summary", fmt.Sprintf("The phone number for %s is %s", query, phone))
		return nil
	})

	return dag, nil
}

func fallbackLookupQuery(utterance string) string {
	if m := lookupTargetPattern.FindStringSubmatch(utterance); m != nil {
		return strings.Trim(strings.TrimSpace(m[1]), ".?!")
	}
	return strings.TrimSpace(utterance)
}
