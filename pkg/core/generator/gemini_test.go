package generator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/vango-go/vai-friend/pkg/core/conversation"
)

type fakeModels struct {
	text    string
	err     error
	models  []string
	prompts []string
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.models = append(f.models, model)
	var b strings.Builder
	for _, c := range contents {
		for _, p := range c.Parts {
			b.WriteString(p.Text)
		}
	}
	f.prompts = append(f.prompts, b.String())
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGemini(t *testing.T, f *fakeModels, profile Profile) *Gemini {
	t.Helper()
	g, err := New(context.Background(), Config{Profile: profile, Logger: quietLogger()}, WithContentGenerator(f))
	require.NoError(t, err)
	return g
}

func TestNew_RequiresAPIKeyWithoutInjectedClient(t *testing.T) {
	_, err := New(context.Background(), Config{Logger: quietLogger()})
	require.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	g := newTestGemini(t, &fakeModels{}, Profile{})
	require.Equal(t, DefaultModel, g.Model())
	require.Equal(t, DefaultPersonality, g.profile.Personality)
}

func TestReply_BuildsPromptFromHistory(t *testing.T) {
	f := &fakeModels{text: "  Why did the gopher cross the road?\n"}
	g := newTestGemini(t, f, Profile{Personality: "You are Ada.", Background: `{"pet": "cat"}`})

	at := time.Unix(0, 0)
	history := []conversation.Turn{
		{Role: conversation.RoleAssistant, Text: "Hey you!", At: at},
		{Role: conversation.RoleUser, Text: "how are you", At: at},
	}
	got := g.Reply(context.Background(), history, "Tell me a joke")

	require.Equal(t, "Why did the gopher cross the road?", got)
	require.Equal(t, []string{DefaultModel}, f.models)
	prompt := f.prompts[0]
	require.True(t, strings.HasPrefix(prompt, "SYSTEM: You are Ada.\n\nHISTORY & BACKGROUND: {\"pet\": \"cat\"}\n\nCONTEXT:\n"), prompt)
	require.Contains(t, prompt, "Assistant: Hey you!\nUser: how are you\n")
	require.True(t, strings.HasSuffix(prompt, "\nUSER: Tell me a joke\n"), prompt)
}

func TestGreeting_Prompt(t *testing.T) {
	f := &fakeModels{text: "Hey! Good to see you again."}
	g := newTestGemini(t, f, Profile{Personality: "p", Background: "b"})

	require.Equal(t, "Hey! Good to see you again.", g.Greeting(context.Background()))
	require.Contains(t, f.prompts[0], "HISTORY & BACKGROUND: b")
	require.Contains(t, f.prompts[0], "just been woken up")
}

func TestFarewell_PromptQuotesUserTextAndOmitsBackground(t *testing.T) {
	f := &fakeModels{text: "Sleep well!"}
	g := newTestGemini(t, f, Profile{Personality: "p", Background: "secret"})

	require.Equal(t, "Sleep well!", g.Farewell(context.Background(), "Goodnight"))
	require.Contains(t, f.prompts[0], `The user said "Goodnight" to end the session.`)
	require.NotContains(t, f.prompts[0], "secret")
}

func TestErrorsProduceEmptyText(t *testing.T) {
	f := &fakeModels{err: errors.New("quota")}
	g := newTestGemini(t, f, Profile{})

	require.Empty(t, g.Reply(context.Background(), nil, "hi"))
	require.Empty(t, g.Greeting(context.Background()))
	require.Empty(t, g.Farewell(context.Background(), "bye"))

	_, err := g.Generate(context.Background(), "x")
	require.ErrorContains(t, err, "quota")
}
