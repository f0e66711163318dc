package skills

import (
	"net/url"

	"github.com/B-A-M-N/NERVA/internal/playbook"
)

// The Google-app playbooks assume an authenticated browser profile; the
// precondition steps land on the app and the postconditions check that the
// signed-in UI rendered rather than the login wall.

func calendarEventPlaybook(fields calendarFields) *playbook.Playbook {
	return &playbook.Playbook{
		Name:        "calendar_create_event",
		Description: "Create a Google Calendar event via the web UI.",
		Preconditions: []playbook.Step{
			{
				Name:    "open_calendar",
				Action:  playbook.ActionNavigate,
				Params:  map[string]any{"url": "https://calendar.google.com/calendar/r"},
				WaitFor: `[aria-label="Create"]`,
			},
		},
		Steps: []playbook.Step{
			{
				Name:      "click_create",
				Action:    playbook.ActionClick,
				Params:    map[string]any{"selector": `[aria-label="Create"]`},
				WaitFor:   `[aria-label="Event"]`,
				OnFailure: playbook.FailRetry,
				Retries:   2,
			},
			{
				Name:    "choose_event",
				Action:  playbook.ActionClick,
				Params:  map[string]any{"selector": `[aria-label="Event"]`},
				WaitFor: `[aria-label="Add title"]`,
			},
			{
				Name:   "fill_title",
				Action: playbook.ActionFill,
				Params: map[string]any{"selector": `[aria-label="Add title"]`, "text": fields.Title},
			},
			{
				Name:   "open_time_options",
				Action: playbook.ActionClick,
				Params: map[string]any{"selector": `[aria-label="Start date"]`},
				Guard:  &playbook.Condition{Selector: `[aria-label="Start date"]`},
			},
			{
				Name:   "fill_date",
				Action: playbook.ActionFill,
				Params: map[string]any{"selector": `[aria-label="Start date"]`, "text": fields.Date},
				Guard:  &playbook.Condition{Selector: `[aria-label="Start date"]`},
			},
			{
				Name:   "fill_start_time",
				Action: playbook.ActionFill,
				Params: map[string]any{"selector": `[aria-label="Start time"]`, "text": fields.Time},
				Guard:  &playbook.Condition{Selector: `[aria-label="Start time"]`},
			},
			{
				Name:      "save_event",
				Action:    playbook.ActionClick,
				Params:    map[string]any{"selector": `button[aria-label="Save"]`},
				OnFailure: playbook.FailRetry,
				Retries:   1,
			},
		},
		Postconditions: []playbook.Condition{
			{Script: `!document.querySelector('[aria-label="Add title"]')`},
		},
	}
}

func mailComposePlaybook(fields mailFields) *playbook.Playbook {
	return &playbook.Playbook{
		Name:        "mail_compose",
		Description: "Compose and send a Gmail message.",
		Preconditions: []playbook.Step{
			{
				Name:    "open_gmail",
				Action:  playbook.ActionNavigate,
				Params:  map[string]any{"url": "https://mail.google.com/mail/u/0/"},
				WaitFor: `[gh="cm"]`,
			},
		},
		Steps: []playbook.Step{
			{
				Name:      "click_compose",
				Action:    playbook.ActionClick,
				Params:    map[string]any{"selector": `[gh="cm"]`},
				WaitFor:   `input[aria-label="To recipients"]`,
				OnFailure: playbook.FailRetry,
				Retries:   2,
			},
			{
				Name:   "fill_to",
				Action: playbook.ActionFill,
				Params: map[string]any{"selector": `input[aria-label="To recipients"]`, "text": fields.To},
			},
			{
				Name:   "fill_subject",
				Action: playbook.ActionFill,
				Params: map[string]any{"selector": `input[name="subjectbox"]`, "text": fields.Subject},
			},
			{
				Name:   "fill_body",
				Action: playbook.ActionFill,
				Params: map[string]any{"selector": `div[aria-label="Message Body"]`, "text": fields.Body},
			},
			{
				Name:   "send",
				Action: playbook.ActionClick,
				Params: map[string]any{"selector": `div[aria-label*="Send"]`},
			},
		},
		Postconditions: []playbook.Condition{
			{Script: `!document.querySelector('input[name="subjectbox"]')`},
		},
	}
}

func mailUnreadPlaybook() *playbook.Playbook {
	return &playbook.Playbook{
		Name:        "mail_unread",
		Description: "List unread Gmail subjects.",
		Steps: []playbook.Step{
			{
				Name:    "open_unread",
				Action:  playbook.ActionNavigate,
				Params:  map[string]any{"url": "https://mail.google.com/mail/u/0/#search/is:unread"},
				WaitFor: `div[role="main"]`,
			},
			{
				Name:   "collect_subjects",
				Action: playbook.ActionEvaluate,
				Params: map[string]any{"script": `Array.from(document.querySelectorAll('tr.zE span.bog')).slice(0, 20).map(e => e.innerText).join('\n')`},
			},
		},
	}
}

func driveSearchPlaybook(fields driveFields) *playbook.Playbook {
	return &playbook.Playbook{
		Name:        "drive_search",
		Description: "Search Google Drive and collect the top results.",
		Steps: []playbook.Step{
			{
				Name:    "open_search",
				Action:  playbook.ActionNavigate,
				Params:  map[string]any{"url": "https://drive.google.com/drive/search?q=" + url.QueryEscape(fields.Query)},
				WaitFor: `div[role="main"]`,
			},
			{
				Name:   "settle",
				Action: playbook.ActionWait,
				Params: map[string]any{"duration_ms": 1500},
			},
			{
				Name:   "collect_files",
				Action: playbook.ActionEvaluate,
				Params: map[string]any{"script": `Array.from(document.querySelectorAll('div[role="main"] [data-tooltip]')).slice(0, 20).map(e => e.getAttribute('data-tooltip')).filter(Boolean).join('\n')`},
			},
		},
	}
}

func lookupPlaybook(query string) *playbook.Playbook {
	return &playbook.Playbook{
		Name:        "lookup_search",
		Description: "Search the web for a business listing.",
		Steps: []playbook.Step{
			{
				Name:    "open_results",
				Action:  playbook.ActionNavigate,
				Params:  map[string]any{"url": "https://duckduckgo.com/?q=" + url.QueryEscape(query)},
				WaitFor: `#links, [data-testid="mainline"]`,
			},
			{
				Name:   "settle",
				Action: playbook.ActionWait,
				Params: map[string]any{"duration_ms": 1000},
			},
		},
	}
}

func researchPlaybook(query string) *playbook.Playbook {
	return &playbook.Playbook{
		Name:        "research_search",
		Description: "Search the web and capture the results page HTML.",
		Steps: []playbook.Step{
			{
				Name:    "open_results",
				Action:  playbook.ActionNavigate,
				Params:  map[string]any{"url": "https://duckduckgo.com/html/?q=" + url.QueryEscape(query)},
				WaitFor: "body",
			},
			{
				Name:   "capture_html",
				Action: playbook.ActionEvaluate,
				Params: map[string]any{"script": `document.documentElement.outerHTML`},
			},
		},
	}
}
