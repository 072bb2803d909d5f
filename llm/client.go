package llm

import (
	"context"
	"os"
	"sync"

	"github.com/m4xw311/superagent/errors"
	"gopkg.in/yaml.v3"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// LLMClient is the interface for interacting with a Large Language Model.
// Tool use is expressed in the text itself, so clients exchange plain text.
type LLMClient interface {
	Chat(ctx context.Context, messages []Message) (*Message, error)
}

type Options struct {
	Model     string
	MaxTokens int
}

func (o Options) maxTokens() int64 {
	if o.MaxTokens <= 0 {
		return 4096
	}
	return int64(o.MaxTokens)
}

// ScriptEnv names the YAML file of canned replies used by the scripted client.
const ScriptEnv = "SUPERAGENT_SCRIPT"

// NewClient creates the client for the named provider. Credentials come from
// the environment; a missing key is an error.
func NewClient(ctx context.Context, provider string, opts Options) (LLMClient, error) {
	switch provider {
	case "anthropic":
		return NewAnthropicLLMClient(ctx, opts)
	case "openai":
		return NewOpenAILLMClient(ctx, opts)
	case "gemini":
		return NewGeminiLLMClient(ctx, opts)
	case "bedrock":
		return NewBedrockLLMClient(ctx, opts)
	case "scripted":
		path := os.Getenv(ScriptEnv)
		if path == "" {
			return nil, errors.New("%s environment variable not set", ScriptEnv)
		}
		return LoadScript(path)
	}
	return nil, errors.New("unknown LLM client: %s", provider)
}

// Step is one canned reply of a ScriptedClient.
type Step struct {
	Content string
	Err     error
}

// ErrScriptExhausted is returned once every scripted reply has been used.
var ErrScriptExhausted = errors.Sentinel("scripted LLM has no more replies")

// ScriptedClient replays fixed replies in order. It backs tests and offline
// runs.
type ScriptedClient struct {
	mu       sync.Mutex
	steps    []Step
	next     int
	received [][]Message
}

func NewScriptedClient(replies ...string) *ScriptedClient {
	steps := make([]Step, len(replies))
	for i, r := range replies {
		steps[i] = Step{Content: r}
	}
	return &ScriptedClient{steps: steps}
}

// Script builds a client from steps, which may include errors.
func Script(steps ...Step) *ScriptedClient {
	return &ScriptedClient{steps: steps}
}

// LoadScript reads a YAML list of replies.
func LoadScript(path string) (*ScriptedClient, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read script %s", path)
	}
	var replies []string
	if err := yaml.Unmarshal(data, &replies); err != nil {
		return nil, errors.Wrapf(err, "failed to parse script %s", path)
	}
	return NewScriptedClient(replies...), nil
}

func (s *ScriptedClient) Chat(ctx context.Context, messages []Message) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.received = append(s.received, append([]Message(nil), messages...))
	if s.next >= len(s.steps) {
		return nil, ErrScriptExhausted
	}
	step := s.steps[s.next]
	s.next++
	if step.Err != nil {
		return nil, step.Err
	}
	return &Message{Role: RoleAssistant, Content: step.Content}, nil
}

// Calls reports how many times Chat was called.
func (s *ScriptedClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

// Received returns the messages passed to the i-th call.
func (s *ScriptedClient) Received(i int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received[i]
}
