package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/B-A-M-N/NERVA/internal/nerrors"
	"github.com/B-A-M-N/NERVA/internal/workflow"
)

// searchResult is one parsed hit from the results page.
type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// ResearchSkill searches the web and synthesizes an answer from the results.
func ResearchSkill() *Skill {
	return &Skill{
		Name:        "research",
		Description: "Search the web and summarize what it says.",
		Keywords:    []string{"research", "search", "what is", "who is", "tell me about"},
		Build:       buildResearchDag,
	}
}

func buildResearchDag(env *Env, utterance string) (*workflow.Dag, error) {
	dag := workflow.NewDag("research")

	dag.MustAdd("search", nil, func(ctx context.Context, rc *workflow.RunContext) error {
		return runPlaybook(ctx, env, researchPlaybook(utterance), rc)
	})

	dag.MustAdd("parse_results", []string{"search"}, func(ctx context.Context, rc *workflow.RunContext) error {
		html := artifactString(rc, "capture_html")
		results, err := parseSearchResults(html)
		if err != nil {
			return err
		}
		rc.SetArtifact("search_results", results)
		return nil
	})

	dag.MustAdd("synthesize", []string{"parse_results"}, func(ctx context.Context, rc *workflow.RunContext) error {
		v, _ := rc.Artifact("search_results")
		results, _ := v.([]searchResult)
		if len(results) == 0 {
			return nerrors.NotFound("skills.research", "no search results to work from")
		}
		var b strings.Builder
		for i, r := range results {
			if i >= 8 {
				break
			}
			fmt.Fprintf(&b, "%d. %s\n%s\n%s\n\n", i+1, r.Title, r.URL, r.Snippet)
		}
		answer, err := chat(ctx, env.LLM,
			"You answer questions from web search results. Be concise and cite which result numbers you used.",
			fmt.Sprintf("Question: %s\n\nSearch results:\n%s", utterance, b.String()))
		if err != nil {
			return err
		}
		rc.SetOutput("answer", answer)
		rc.SetOutput("summary", answer)
		return nil
	})

	return dag, nil
}

// parseSearchResults extracts titles, links, and snippets from a DuckDuckGo
// HTML results page.
func parseSearchResults(html string) ([]searchResult, error) {
	if strings.TrimSpace(html) == "" {
		return nil, nerrors.BadResponse("skills.research", "empty results page")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nerrors.Wrap(nerrors.KindBadResponse, "skills.research", err)
	}

	var results []searchResult
	doc.Find(".result").Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		snippet := strings.TrimSpace(sel.Find(".result__snippet").First().Text())
		if title == "" || href == "" {
			return
		}
		results = append(results, searchResult{Title: title, URL: href, Snippet: snippet})
	})
	return results, nil
}
