package generate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/sjson"
)

// Options are the parameters of one generation call.
type Options struct {
	Prompt    string
	StartWith string    // seeds the output buffer and is sent to the backend
	MaxTokens int       // 0 => backend default
	TrimFirst bool      // ask the backend to trim leading whitespace of the first token
	Sampling  *Sampling // nil => backend default
}

// Sampling controls token selection. Field names follow the wire format.
type Sampling struct {
	TopK             int      `json:"top_k"`
	TopP             float64  `json:"top_p"`
	Temperature      float64  `json:"temperature"`
	RepeatNLast      int      `json:"repeat_n_last"`
	RepeatPenalty    float64  `json:"repeat_penalty"`
	PresencePenalty  float64  `json:"presence_penalty"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	AddBOS           bool     `json:"add_bos"`
	Stop             []string `json:"stop"`
	JSON             bool     `json:"json"`
}

func DefaultSampling() *Sampling {
	return &Sampling{
		Temperature:   0.7,
		TopK:          40,
		TopP:          0.5,
		RepeatNLast:   256,
		RepeatPenalty: 1.05,
		AddBOS:        true,
		Stop:          []string{},
	}
}

// requestBody builds the streaming request:
// {model, prompt, start_with?, max_tokens?, trim_first?, sampling?, stream: true}.
func requestBody(model string, o Options) (json.RawMessage, error) {
	b := []byte(`{}`)
	var err error
	set := func(path string, v any) {
		if err == nil {
			b, err = sjson.SetBytes(b, path, v)
		}
	}

	set("model", model)
	set("prompt", o.Prompt)
	if o.StartWith != "" {
		set("start_with", o.StartWith)
	}
	if o.MaxTokens > 0 {
		set("max_tokens", o.MaxTokens)
	}
	if o.TrimFirst {
		set("trim_first", true)
	}
	if o.Sampling != nil {
		raw, merr := json.Marshal(o.Sampling)
		if merr != nil {
			return nil, fmt.Errorf("generate: encode sampling: %w", merr)
		}
		if err == nil {
			b, err = sjson.SetRawBytes(b, "sampling", raw)
		}
	}
	set("stream", true)

	if err != nil {
		return nil, fmt.Errorf("generate: build request: %w", err)
	}
	return json.RawMessage(b), nil
}

// DefaultChatSystem is the preamble used by SerializeChat when system is "".
const DefaultChatSystem = "A chat between a curious user and an artificial intelligence assistant. " +
	"The assistant gives helpful, detailed, and polite answers to the user's questions.\n\n"

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SerializeChat renders a conversation as a plain completion prompt, one
// "ROLE: content" line per message, trailing whitespace trimmed. End the
// slice with an empty assistant message to prompt for the next reply.
func SerializeChat(system string, messages []ChatMessage) string {
	if system == "" {
		system = DefaultChatSystem
	}
	var b strings.Builder
	b.WriteString(system)
	for _, m := range messages {
		b.WriteString(strings.ToUpper(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), " \t\r\n")
}

// ChatStop are the stop sequences that end an assistant turn in a prompt
// built by SerializeChat.
func ChatStop() []string { return []string{"USER", ":"} }
