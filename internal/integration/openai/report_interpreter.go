// Package openai turns free-text community messages into structured report drafts.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ReportDraft defines the structured output from the OpenAI agent.
type ReportDraft struct {
	ReportType  string `json:"report_type" jsonschema:"enum=running_out,enum=contaminated,enum=infrastructure,enum=other" jsonschema_description:"The kind of problem described by the user"`
	Urgency     string `json:"urgency" jsonschema:"enum=low,enum=medium,enum=high,enum=critical" jsonschema_description:"How urgent the user says the problem is"`
	Description string `json:"description" jsonschema_description:"A short factual summary of the problem in the user's language"`
	UserMessage string `json:"user_message" jsonschema_description:"A message to show back to the user in their original language"`
}

// Report converts the draft into an untriaged report. Unknown types fall back to other and unknown
// urgencies to low; triage applies the type baselines afterwards.
func (d ReportDraft) Report() entities.Report {
	r := entities.Report{
		Type:        entities.ReportOther,
		Urgency:     entities.SeverityLow,
		Description: strings.TrimSpace(d.Description),
		Status:      entities.ReportPending,
	}
	for _, t := range entities.ReportTypes() {
		if string(t) == d.ReportType {
			r.Type = t
		}
	}
	if s, err := entities.ParseSeverity(d.Urgency); err == nil && s != entities.SeverityNone {
		r.Urgency = s
	}
	return r
}

// ReportInterpreter defines the interface for interpreting free-text reports.
type ReportInterpreter interface {
	InterpretReport(ctx context.Context, message string) (*ReportDraft, error)
}

// openAIInterpreter implements ReportInterpreter.
type openAIInterpreter struct {
	client openai.Client
	schema interface{}
}

// GenerateSchema generates a JSON schema for a given type.
func GenerateSchema[T any]() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return schema
}

// NewReportInterpreter creates a ReportInterpreter. An empty apiKey falls back to OPENAI_API_KEY.
func NewReportInterpreter(apiKey string, opts ...option.RequestOption) (ReportInterpreter, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)

	return &openAIInterpreter{
		client: openai.NewClient(opts...),
		schema: GenerateSchema[ReportDraft](),
	}, nil
}

const systemPrompt = `You help a community water committee in a dry rural area register problems reported by families.

Read the user's message and classify it:
- report_type = "running_out" when the household or facility is out of water or about to be.
- report_type = "contaminated" when the water looks, smells or tastes wrong or people got sick from it.
- report_type = "infrastructure" for broken cisterns, pipes, taps, pumps or lids.
- report_type = "other" for anything else.

urgency: the urgency the user expresses. Use "critical" only when people are already without water or
ill, "high" for children, elderly or health centers at risk, otherwise "medium" or "low".

description: one or two factual sentences, in the user's language, without greetings.
user_message: a short, kind confirmation in the user's language telling them the report was received.

Output strictly in JSON.`

// InterpretReport sends a message to the OpenAI agent and returns the structured draft.
func (s *openAIInterpreter) InterpretReport(ctx context.Context, message string) (*ReportDraft, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "report_draft",
		Description: openai.String("Structured community water report"),
		Schema:      s.schema,
		Strict:      openai.Bool(true),
	}

	respFormat := openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
	}

	chat, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(message),
		},
		ResponseFormat: respFormat,
		Model:          openai.ChatModelGPT4o,
	})
	if err != nil {
		return nil, fmt.Errorf("error calling OpenAI API: %w", err)
	}

	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return nil, errors.New("received empty response from OpenAI")
	}
	return parseDraft(chat.Choices[0].Message.Content)
}

func parseDraft(content string) (*ReportDraft, error) {
	var draft ReportDraft
	if err := json.Unmarshal([]byte(content), &draft); err != nil {
		log.Printf("Failed to unmarshal OpenAI response: %s\nRaw response: %s", err, content)
		return nil, fmt.Errorf("error unmarshalling OpenAI response: %w", err)
	}
	if strings.TrimSpace(draft.Description) == "" {
		return nil, fmt.Errorf("%w: interpreted report has no description", entities.ErrInvalidInput)
	}
	return &draft, nil
}
