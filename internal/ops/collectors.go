// Package ops gathers the morning-briefing inputs: open TODOs, recent log
// errors, GitHub notifications, and LLM cluster health.
package ops

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/B-A-M-N/NERVA/internal/jsonx"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

// CollectTodos scans markdown notes for open checkbox items and TODO lines.
func CollectTodos(notesDir string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	var todos []string
	err := filepath.WalkDir(notesDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ext := filepath.Ext(path); ext != ".md" && ext != ".txt" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		for _, line := range strings.Split(string(data), "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "- [ ]") || strings.Contains(trimmed, "TODO:") {
				todos = append(todos, trimmed)
				if len(todos) >= limit {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, nerrors.NotFound("ops.todos", "notes directory unreadable: "+notesDir)
	}
	return todos, nil
}

// TailLogs returns recent warning and error lines from the newest log files.
func TailLogs(logDir string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return nil, nerrors.NotFound("ops.logs", "log directory unreadable: "+logDir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".log") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	var lines []string
	for _, name := range names {
		if len(lines) >= limit {
			break
		}
		data, err := os.ReadFile(filepath.Join(logDir, name))
		if err != nil {
			continue
		}
		fileLines := strings.Split(string(data), "\n")
		for i := len(fileLines) - 1; i >= 0 && len(lines) < limit; i-- {
			line := fileLines[i]
			if strings.Contains(line, "[ERROR]") || strings.Contains(line, "[WARN]") {
				lines = append(lines, line)
			}
		}
	}
	return lines, nil
}

// CollectGitHubNotifications shells out to the gh CLI. A missing or
// unauthenticated gh is an Unavailable error, not a crash.
func CollectGitHubNotifications(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	cmd := exec.CommandContext(ctx, "gh", "api", "notifications", "--jq",
		".[] | .repository.full_name + \": \" + .subject.title")
	out, err := cmd.Output()
	if err != nil {
		return nil, nerrors.Unavailable("ops.github", fmt.Errorf("gh api notifications: %w", err))
	}
	var notes []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			notes = append(notes, line)
			if len(notes) >= limit {
				break
			}
		}
	}
	return notes, nil
}

// nodeStatus is one row of the router's health report.
type nodeStatus struct {
	Node   string `json:"node"`
	Status string `json:"status"`
	Model  string `json:"model,omitempty"`
}

// CollectClusterStatus asks the LLM router for node health.
func CollectClusterStatus(ctx context.Context, routerURL string) ([]string, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, routerURL+"/health/nodes", nil)
	if err != nil {
		return nil, nerrors.Wrap(nerrors.KindInternal, "ops.cluster", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nerrors.Unavailable("ops.cluster", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nerrors.Unavailable("ops.cluster", fmt.Errorf("router status %d", resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nerrors.Unavailable("ops.cluster", err)
	}
	var nodes []nodeStatus
	if err := jsonx.Unmarshal(data, &nodes); err != nil {
		return nil, nerrors.Wrap(nerrors.KindBadResponse, "ops.cluster", err)
	}
	report := make([]string, 0, len(nodes))
	for _, n := range nodes {
		line := n.Node + " " + n.Status
		if n.Model != "" {
			line += " (" + n.Model + ")"
		}
		report = append(report, line)
	}
	return report, nil
}
