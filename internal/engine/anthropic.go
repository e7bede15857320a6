package engine

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/abelikov/convogate/internal/domain"
)

const defaultSystemPrompt = `You are a concise weather and small-talk assistant.
The user's preferred temperature unit and current mood are provided below; honor the unit in any temperature you mention.
If the tone of the conversation clearly changes, end your reply with a single tag of the form <mood>Happy</mood> (one word, e.g. Happy, Neutral, Grumpy). Otherwise omit the tag.`

// moodTagPattern matches the trailing mood tag the system prompt asks for.
var moodTagPattern = regexp.MustCompile(`<mood>([A-Za-z]+)</mood>`)

// AnthropicConfig configures the Anthropic engine binding.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	AgentName string
	MaxTokens int
}

// AnthropicEngine implements Engine against the Anthropic Messages API.
// Text deltas are surfaced as partial events; the accumulated reply becomes
// the single final-response event, with any mood tag stripped from the text
// and turned into a state delta.
type AnthropicEngine struct {
	client    anthropic.Client
	model     anthropic.Model
	agentName string
	maxTokens int64
	states    StateReader
}

// StateReader exposes the tracked auxiliary state of a conversation so the
// engine can fold it into the system prompt.
type StateReader interface {
	StateSnapshot(userID string) map[string]string
}

// NewAnthropicEngine creates the engine binding. states may be nil, in which
// case the prompt carries no session context.
func NewAnthropicEngine(cfg AnthropicConfig, states StateReader) *AnthropicEngine {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	agentName := cfg.AgentName
	if agentName == "" {
		agentName = "weather_agent"
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicEngine{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		agentName: agentName,
		maxTokens: maxTokens,
		states:    states,
	}
}

// Run sends one turn and yields events as the model streams.
func (e *AnthropicEngine) Run(ctx context.Context, userID, sessionKey, message string) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		params := anthropic.MessageNewParams{
			Model:     e.model,
			MaxTokens: e.maxTokens,
			System: []anthropic.TextBlockParam{
				{Text: e.systemPrompt(userID)},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(message)),
			},
		}

		stream := e.client.Messages.NewStreaming(ctx, params)
		var full strings.Builder

		for stream.Next() {
			ev := stream.Current()
			if ev.Type != "content_block_delta" || ev.Delta.Type != "text_delta" {
				continue
			}
			full.WriteString(ev.Delta.Text)
			partial := &Event{
				Author:  e.agentName,
				Content: &Content{Parts: []Part{{Text: ev.Delta.Text}}},
				Partial: true,
			}
			if !yield(partial, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(nil, fmt.Errorf("anthropic stream: %w", err))
			return
		}

		text, delta := extractMoodDelta(full.String())
		final := &Event{
			Author:        e.agentName,
			Content:       &Content{Parts: []Part{{Text: text}}},
			FinalResponse: true,
		}
		if delta != nil {
			final.Actions = &Actions{StateDelta: delta}
		}
		yield(final, nil)
	}
}

func (e *AnthropicEngine) systemPrompt(userID string) string {
	prompt := defaultSystemPrompt
	if e.states == nil {
		return prompt
	}
	state := e.states.StateSnapshot(userID)
	if len(state) == 0 {
		return prompt
	}
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nSession context:")
	if unit := state[domain.StateKeyTemperatureUnit]; unit != "" {
		fmt.Fprintf(&sb, "\n- preferred temperature unit: %s", unit)
	}
	if mood := state[domain.StateKeyMood]; mood != "" {
		fmt.Fprintf(&sb, "\n- user mood: %s", mood)
	}
	return sb.String()
}

// extractMoodDelta strips a trailing mood tag from the reply and returns the
// cleaned text plus the state delta it implies, if any.
func extractMoodDelta(text string) (string, map[string]string) {
	m := moodTagPattern.FindStringSubmatch(text)
	if m == nil {
		return text, nil
	}
	cleaned := strings.TrimSpace(moodTagPattern.ReplaceAllString(text, ""))
	return cleaned, map[string]string{domain.StateKeyMood: m[1]}
}
