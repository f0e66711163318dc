package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/B-A-M-N/NERVA/internal/workflow"
)

type driveFields struct {
	Query string `json:"query"`
}

// DriveSkill searches Google Drive for files.
func DriveSkill() *Skill {
	return &Skill{
		Name:        "drive",
		Description: "Search Drive and summarize matching files.",
		Keywords:    []string{"drive", "document", "spreadsheet", "file", "doc"},
		Build:       buildDriveDag,
	}
}

func buildDriveDag(env *Env, utterance string) (*workflow.Dag, error) {
	dag := workflow.NewDag("drive")

	dag.MustAdd("extract_query", nil, func(ctx context.Context, rc *workflow.RunContext) error {
		prompt := fmt.Sprintf(`Extract the file search terms from this request:
%q
Reply with one JSON object: {"query": "..."}.`, utterance)
		var fields driveFields
		if err := extractFields(ctx, env.LLM, prompt, &fields); err != nil {
			return err
		}
		if strings.TrimSpace(fields.Query) == "" {
			fields.Query = utterance
		}
		rc.SetArtifact("drive_fields", fields)
		return nil
	})

	dag.MustAdd("search_drive", []string{"extract_query"}, func(ctx context.Context, rc *workflow.RunContext) error {
		v, _ := rc.Artifact("drive_fields")
		fields, ok := v.(driveFields)
		if !ok {
			fields = driveFields{Query: utterance}
		}
		return runPlaybook(ctx, env, driveSearchPlaybook(fields), rc)
	})

	dag.MustAdd("summarize", []string{"search_drive"}, func(ctx context.Context, rc *workflow.RunContext) error {
		files := artifactString(rc, "collect_files")
		if strings.TrimSpace(files) == "" {
			rc.SetOutput("summary", "No matching files in Drive.")
			return nil
		}
		rc.SetOutput("summary", "Drive files found:\n"+files)
		return nil
	})

	return dag, nil
}
