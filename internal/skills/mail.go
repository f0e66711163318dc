package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/B-A-M-N/NERVA/internal/workflow"
)

type mailFields struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// MailSkill composes Gmail messages or lists unread mail.
func MailSkill() *Skill {
	return &Skill{
		Name:        "mail",
		Description: "Compose mail or summarize the unread inbox.",
		Keywords:    []string{"email", "mail", "inbox", "compose", "unread"},
		Build:       buildMailDag,
	}
}

func buildMailDag(env *Env, utterance string) (*workflow.Dag, error) {
	if wantsUnread(utterance) {
		return buildMailUnreadDag(env)
	}
	return buildMailComposeDag(env, utterance)
}

func wantsUnread(utterance string) bool {
	lower := strings.ToLower(utterance)
	return strings.Contains(lower, "unread") ||
		strings.Contains(lower, "inbox") ||
		strings.Contains(lower, "check my mail") ||
		strings.Contains(lower, "check my email")
}

func buildMailComposeDag(env *Env, utterance string) (*workflow.Dag, error) {
	dag := workflow.NewDag("mail_compose")

	dag.MustAdd("extract_fields", nil, func(ctx context.Context, rc *workflow.RunContext) error {
		prompt := fmt.Sprintf(`Extract the email from this request:
%q
Reply with one JSON object: {"to": "...", "subject": "...", "body": "..."}.
Write a short courteous body when the request implies one.`, utterance)
		var fields mailFields
		if err := extractFields(ctx, env.LLM, prompt, &fields); err != nil {
			return err
		}
		rc.SetArtifact("mail_fields", fields)
		return nil
	})

	dag.MustAdd("compose", []string{"extract_fields"}, func(ctx context.Context, rc *workflow.RunContext) error {
		v, _ := rc.Artifact("mail_fields")
		fields, ok := v.(mailFields)
		if !ok {
			fields = mailFields{Body: utterance}
		}
		return runPlaybook(ctx, env, mailComposePlaybook(fields), rc)
	})

	dag.MustAdd("summarize", []string{"compose"}, func(ctx context.Context, rc *workflow.RunContext) error {
		v, _ := rc.Artifact("mail_fields")
		fields, _ := v.(mailFields)
		rc.SetOutput("summary", fmt.Sprintf("Sent mail to %s with subject %q", fields.To, fields.Subject))
		return nil
	})

	return dag, nil
}

func buildMailUnreadDag(env *Env) (*workflow.Dag, error) {
	dag := workflow.NewDag("mail_unread")

	dag.MustAdd("collect_unread", nil, func(ctx context.Context, rc *workflow.RunContext) error {
		return runPlaybook(ctx, env, mailUnreadPlaybook(), rc)
	})

	dag.MustAdd("summarize", []string{"collect_unread"}, func(ctx context.Context, rc *workflow.RunContext) error {
		subjects := artifactString(rc, "collect_subjects")
		if strings.TrimSpace(subjects) == "" {
			rc.SetOutput("summary", "No unread mail.")
			return nil
		}
		summary, err := chat(ctx, env.LLM, "",
			"Summarize these unread email subjects in two sentences:\n"+subjects)
		if err != nil {
			return err
		}
		rc.SetOutput("summary", summaryOr(summary, subjects))
		return nil
	})

	return dag, nil
}
