package playbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePlaybook() *Playbook {
	return &Playbook{
		Name:        "sample",
		Description: "round-trip fixture",
		Preconditions: []Step{
			{Name: "open", Action: ActionNavigate, Params: map[string]any{"url": "https://example.com"}},
		},
		Steps: []Step{
			{
				Name:    "search",
				Action:  ActionFill,
				Params:  map[string]any{"selector": "#q", "text": "hello"},
				WaitFor: "#results",
				Guard:   &Condition{Selector: "#q"},
			},
			{
				Name:      "submit",
				Action:    ActionClick,
				Params:    map[string]any{"selector": "#go"},
				OnFailure: FailRetry,
				Retries:   2,
			},
		},
		Postconditions: []Condition{
			{Script: "document.title.length > 0"},
		},
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	original := samplePlaybook()
	data, err := original.ToYAML()
	require.NoError(t, err)

	parsed, err := ParseYAML(data)
	require.NoError(t, err)
	assert.Equal(t, original.Name, parsed.Name)
	require.Len(t, parsed.Steps, 2)
	assert.Equal(t, original.Steps[0].WaitFor, parsed.Steps[0].WaitFor)
	require.NotNil(t, parsed.Steps[0].Guard)
	assert.Equal(t, "#q", parsed.Steps[0].Guard.Selector)
	assert.Equal(t, FailRetry, parsed.Steps[1].OnFailure)
	assert.Equal(t, 2, parsed.Steps[1].Retries)
	require.Len(t, parsed.Postconditions, 1)

	// Second pass proves the encoding is stable.
	again, err := parsed.ToYAML()
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestParseRejectsUnknownAction(t *testing.T) {
	_, err := ParseYAML([]byte(`
name: bad
steps:
  - name: x
    action: teleport
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
}

func TestParseRejectsUnnamedPlaybook(t *testing.T) {
	_, err := ParseYAML([]byte("steps: []\n"))
	require.Error(t, err)
}

func TestParseRejectsUnknownFailurePolicy(t *testing.T) {
	_, err := ParseYAML([]byte(`
name: bad
steps:
  - name: x
    action: click
    on_failure: shrug
`))
	require.Error(t, err)
}

func TestEmptyStepsWithPostconditionsIsValid(t *testing.T) {
	pb, err := ParseYAML([]byte(`
name: check_only
postconditions:
  - selector: "#signed-in"
`))
	require.NoError(t, err)
	assert.Empty(t, pb.Steps)
	require.Len(t, pb.Postconditions, 1)
}
