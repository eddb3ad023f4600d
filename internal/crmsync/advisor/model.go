package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const sourceModel = "model"

const modelInstruction = `You diagnose rejected CRM API calls for a lead routing service.
You receive the operation, the HTTP status, the CRM error body, the payload that
was sent and the field mapping reference (field id, scope and declared type).

Reply with a single JSON object:
{"suspectFields": [string], "rootCause": string, "correctedPayload": object|null, "confidence": number}

Rules:
- correctedPayload may only restructure, rename keys, re-type or remove values
  that are already present in the payload. Never invent names, emails, phone
  numbers, addresses or any other value.
- If the error cannot be fixed without new customer data, set correctedPayload to null.
- confidence is between 0 and 1 and reflects how likely the corrected payload is accepted.`

// ModelAdvisor asks a language model for a diagnosis.
type ModelAdvisor struct {
	llm model.LLM
}

// NewModelAdvisor creates an advisor over llm.
func NewModelAdvisor(llm model.LLM) *ModelAdvisor {
	return &ModelAdvisor{llm: llm}
}

type modelReply struct {
	SuspectFields []string       `json:"suspectFields"`
	RootCause     string         `json:"rootCause"`
	Corrected     map[string]any `json:"correctedPayload"`
	Confidence    float64        `json:"confidence"`
}

// Diagnose implements Advisor.
func (a *ModelAdvisor) Diagnose(ctx context.Context, p Problem) (Diagnosis, error) {
	prompt, err := buildPrompt(p)
	if err != nil {
		return Diagnosis{}, err
	}

	req := &model.LLMRequest{
		Contents: []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(modelInstruction, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0),
			ResponseMIMEType:  "application/json",
		},
	}

	var text strings.Builder
	for resp, err := range a.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return Diagnosis{}, fmt.Errorf("advisor model %s: %w", a.llm.Name(), err)
		}
		if resp == nil || resp.Content == nil {
			continue
		}
		for _, part := range resp.Content.Parts {
			if part != nil {
				text.WriteString(part.Text)
			}
		}
	}

	reply, err := parseReply(text.String())
	if err != nil {
		return Diagnosis{}, err
	}
	return Diagnosis{
		SuspectFields: reply.SuspectFields,
		RootCause:     reply.RootCause,
		Corrected:     reply.Corrected,
		Confidence:    clampConfidence(reply.Confidence),
		Source:        sourceModel,
	}, nil
}

func buildPrompt(p Problem) (string, error) {
	doc := map[string]any{
		"operation":  p.Operation,
		"endpoint":   p.Endpoint,
		"statusCode": p.StatusCode,
		"errorBody":  truncate(p.ErrorBody, 4000),
		"payload":    p.Payload,
		"fields":     p.Fields,
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode advisor prompt: %w", err)
	}
	return "Rejected CRM call:\n" + string(b), nil
}

// parseReply tolerates fenced code blocks around the JSON object.
func parseReply(text string) (modelReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return modelReply{}, errors.New("advisor model returned an empty reply")
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}
	var reply modelReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return modelReply{}, fmt.Errorf("decode advisor reply: %w", err)
	}
	return reply, nil
}
