package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/B-A-M-N/NERVA/internal/browser"
	"github.com/B-A-M-N/NERVA/internal/jsonx"
	"github.com/B-A-M-N/NERVA/internal/llm"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
	"github.com/B-A-M-N/NERVA/internal/playbook"
	"github.com/B-A-M-N/NERVA/internal/workflow"
)

// extractFields asks the text model to pull structured fields out of the
// utterance, retrying once with a strict-JSON reminder before failing.
func extractFields(ctx context.Context, client llm.TextClient, prompt string, v any) error {
	reply, err := client.Chat(ctx, []llm.Message{llm.User(prompt)}, nil)
	if err != nil {
		return err
	}
	if jsonx.ExtractObject(reply, v) == nil {
		return nil
	}
	reply, err = client.Chat(ctx, []llm.Message{
		llm.User(prompt + "\n\nReply with ONLY the JSON object, no prose, no code fences."),
	}, nil)
	if err != nil {
		return err
	}
	if err := jsonx.ExtractObject(reply, v); err != nil {
		return nerrors.BadResponse("skills.extract_fields", "model reply unparseable after retry")
	}
	return nil
}

// withBrowser opens a fresh driver, runs fn, and always closes the driver.
func withBrowser(env *Env, fn func(driver browser.Driver) error) error {
	driver, err := env.NewBrowser()
	if err != nil {
		return nerrors.Unavailable("skills.browser", err)
	}
	defer driver.Close()
	return fn(driver)
}

// runPlaybook executes a playbook on a fresh browser, folding the report into
// the run context under the playbook name.
func runPlaybook(ctx context.Context, env *Env, pb *playbook.Playbook, rc *workflow.RunContext) error {
	return withBrowser(env, func(driver browser.Driver) error {
		runner := playbook.NewRunner(driver, env.Logger)
		report, err := runner.Run(ctx, pb, rc)
		if report != nil {
			rc.SetArtifact(pb.Name+"_report", report)
		}
		if err != nil {
			return err
		}
		if report.Failed {
			return nerrors.New(nerrors.KindUnavailable, "skills.playbook", report.Reason)
		}
		return nil
	})
}

// chat is a single-turn convenience wrapper.
func chat(ctx context.Context, client llm.TextClient, system, user string) (string, error) {
	msgs := []llm.Message{}
	if system != "" {
		msgs = append(msgs, llm.System(system))
	}
	msgs = append(msgs, llm.User(user))
	reply, err := client.Chat(ctx, msgs, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func summaryOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func artifactString(rc *workflow.RunContext, key string) string {
	v, _ := rc.Artifact(key)
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
