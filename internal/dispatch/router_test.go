package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B-A-M-N/NERVA/internal/llm"
	"github.com/B-A-M-N/NERVA/internal/skills"
	"github.com/B-A-M-N/NERVA/internal/workflow"
)

func stubSkill(name string, keywords ...string) *skills.Skill {
	return &skills.Skill{
		Name:     name,
		Keywords: keywords,
		Build: func(env *skills.Env, utterance string) (*workflow.Dag, error) {
			return workflow.NewDag(name), nil
		},
	}
}

func testRegistry(t *testing.T) *skills.Registry {
	t.Helper()
	r := skills.NewRegistry()
	require.NoError(t, r.Register(stubSkill("calendar", "calendar", "meeting")))
	require.NoError(t, r.Register(stubSkill("mail", "email", "inbox")))
	require.NoError(t, r.Register(stubSkill("free_form")))
	return r
}

func TestRouteSingleKeywordHitSkipsModel(t *testing.T) {
	client := llm.NewScriptedText()
	router := NewRouter(testRegistry(t), client, nil)

	route := router.Route(context.Background(), "schedule a meeting tomorrow")
	assert.Equal(t, "calendar", route)
	assert.Zero(t, client.Calls())
}

func TestRouteMultipleHitsAskModel(t *testing.T) {
	client := llm.NewScriptedText("mail")
	router := NewRouter(testRegistry(t), client, nil)

	route := router.Route(context.Background(), "email me about the meeting")
	assert.Equal(t, "mail", route)
	assert.Equal(t, 1, client.Calls())
}

func TestRouteNoHitsAskModelThenFreeForm(t *testing.T) {
	client := llm.NewScriptedText("nonexistent_skill")
	router := NewRouter(testRegistry(t), client, nil)

	route := router.Route(context.Background(), "write a poem")
	assert.Equal(t, "free_form", route)
}

func TestRouteModelFailureFallsBackToFreeForm(t *testing.T) {
	client := llm.NewScriptedText()
	router := NewRouter(testRegistry(t), client, nil)

	route := router.Route(context.Background(), "write a poem about boats")
	assert.Equal(t, "free_form", route)
}

func TestRouteCachesModelVerdict(t *testing.T) {
	client := llm.NewScriptedText("mail")
	router := NewRouter(testRegistry(t), client, nil)

	first := router.Route(context.Background(), "email me about the meeting")
	second := router.Route(context.Background(), "email me about the meeting")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, client.Calls(), "second route served from cache")
}

func TestCheckAmbiguityEmptyUtterance(t *testing.T) {
	router := NewRouter(testRegistry(t), llm.NewScriptedText(), nil)
	needs, question := router.CheckAmbiguity(context.Background(), "   ")
	assert.True(t, needs)
	assert.NotEmpty(t, question)
}

func TestCheckAmbiguityGreeting(t *testing.T) {
	router := NewRouter(testRegistry(t), llm.NewScriptedText(), nil)
	needs, _ := router.CheckAmbiguity(context.Background(), "hello")
	assert.False(t, needs)
}

func TestCheckAmbiguityModelVerdict(t *testing.T) {
	client := llm.NewScriptedText(`{"needs_clarification": true, "question": "Which account?"}`)
	router := NewRouter(testRegistry(t), client, nil)

	needs, question := router.CheckAmbiguity(context.Background(), "move the money to the other one")
	assert.True(t, needs)
	assert.Equal(t, "Which account?", question)
}

func TestCheckAmbiguityModelFailureMeansClear(t *testing.T) {
	router := NewRouter(testRegistry(t), llm.NewScriptedText(), nil)
	needs, _ := router.CheckAmbiguity(context.Background(), "summarize the quarterly report for me")
	assert.False(t, needs)
}

func TestSafetyGateMatchesWholeWords(t *testing.T) {
	gate := NewSafetyGate()

	risky, trigger := gate.Risky("please delete the old backups")
	assert.True(t, risky)
	assert.Equal(t, "delete", trigger)

	risky, _ = gate.Risky("run rm -rf on the temp dir")
	assert.True(t, risky)

	risky, _ = gate.Risky("my account was deleted yesterday")
	assert.False(t, risky, "past-tense retelling is not a command")

	risky, _ = gate.Risky("look up the weather")
	assert.False(t, risky)
}
