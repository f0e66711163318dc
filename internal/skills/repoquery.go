package skills

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/B-A-M-N/NERVA/internal/nerrors"
	"github.com/B-A-M-N/NERVA/internal/workflow"
)

const (
	maxRepoFiles    = 400
	maxSnippetBytes = 4000
)

// RepoQuerySkill answers questions about local repositories: it indexes the
// configured projects directory and feeds file trees plus doc snippets to the
// text model.
func RepoQuerySkill() *Skill {
	return &Skill{
		Name:        "repo_query",
		Description: "Answer questions about local code repositories.",
		Keywords:    []string{"repo", "repository", "codebase", "project", "source code"},
		Build:       buildRepoQueryDag,
	}
}

func buildRepoQueryDag(env *Env, utterance string) (*workflow.Dag, error) {
	dag := workflow.NewDag("repo_query")

	dag.MustAdd("index_repos", nil, func(ctx context.Context, rc *workflow.RunContext) error {
		root := ""
		if env.Config != nil {
			root = env.Config.ReposDir
		}
		index, err := indexRepos(root)
		if err != nil {
			return err
		}
		rc.SetArtifact("repo_index", index)
		return nil
	})

	dag.MustAdd("answer", []string{"index_repos"}, func(ctx context.Context, rc *workflow.RunContext) error {
		index := artifactString(rc, "repo_index")
		answer, err := chat(ctx, env.LLM,
			"You answer questions about the user's local repositories from the index below. Say so when the index does not cover the question.",
			fmt.Sprintf("Question: %s\n\nRepository index:\n%s", utterance, index))
		if err != nil {
			return err
		}
		rc.SetOutput("answer", answer)
		rc.SetOutput("summary", answer)
		return nil
	})

	return dag, nil
}

// indexRepos builds a text index of every repository under root: the file
// tree plus README and doc snippets.
func indexRepos(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", nerrors.NotFound("skills.repo_query", "no repositories directory at "+root)
	}

	var b strings.Builder
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		repoPath := filepath.Join(root, entry.Name())
		fmt.Fprintf(&b, "## repository %s\n", entry.Name())
		writeFileTree(&b, repoPath)
		writeDocSnippets(&b, repoPath)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "", nerrors.NotFound("skills.repo_query", "no repositories under "+root)
	}
	return b.String(), nil
}

func writeFileTree(b *strings.Builder, repoPath string) {
	count := 0
	_ = filepath.WalkDir(repoPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if name == ".git" || name == "node_modules" || name == "vendor" || name == "__pycache__" {
				return filepath.SkipDir
			}
			return nil
		}
		if count >= maxRepoFiles {
			return filepath.SkipAll
		}
		rel, _ := filepath.Rel(repoPath, path)
		fmt.Fprintf(b, "  %s\n", rel)
		count++
		return nil
	})
}

// writeDocSnippets appends README and top-level doc content, truncated.
func writeDocSnippets(b *strings.Builder, repoPath string) {
	entries, err := os.ReadDir(repoPath)
	if err != nil {
		return
	}
	var docs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		lower := strings.ToLower(entry.Name())
		if strings.HasPrefix(lower, "readme") || lower == "design.md" || lower == "architecture.md" {
			docs = append(docs, entry.Name())
		}
	}
	sort.Strings(docs)
	for _, doc := range docs {
		data, err := os.ReadFile(filepath.Join(repoPath, doc))
		if err != nil {
			continue
		}
		if len(data) > maxSnippetBytes {
			data = data[:maxSnippetBytes]
		}
		fmt.Fprintf(b, "### %s\n%s\n", doc, string(data))
	}
}
