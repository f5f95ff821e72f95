package pdftext

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const transcribePrompt = "Transcribe the text of the attached PDF document.\n\n" +
	"Rules:\n" +
	"- Output plain text only, preserving the original line breaks and reading order.\n" +
	"- Keep letterheads, company names and addresses exactly as written, including capitalization.\n" +
	"- Do not summarize, translate or add commentary.\n" +
	"- Do NOT wrap the response in code fences.\n"

// contentGenerator is the subset of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig selects the Vertex AI project and model. Empty project and
// location fall back to the GOOGLE_CLOUD_* environment.
type GeminiConfig struct {
	Project  string
	Location string
	Model    string
}

// GeminiRenderer asks a Gemini model to transcribe the document. It handles
// scanned PDFs that have no text layer.
type GeminiRenderer struct {
	models contentGenerator
	model  string
}

var _ Renderer = (*GeminiRenderer)(nil)

func NewGeminiRenderer(ctx context.Context, cfg GeminiConfig) (*GeminiRenderer, error) {
	clientCfg := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	if cfg.Project != "" {
		clientCfg.Backend = genai.BackendVertexAI
		clientCfg.Project = cfg.Project
		clientCfg.Location = cfg.Location
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiRenderer: create genai client: %w", err)
	}

	return &GeminiRenderer{models: client.Models, model: cfg.Model}, nil
}

func (g *GeminiRenderer) Name() string { return "gemini" }

func (g *GeminiRenderer) Render(ctx context.Context, pdf []byte) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: transcribePrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: "application/pdf",
						Data:     pdf,
					},
				},
			},
		},
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GeminiRenderer: generate content: %w", err)
	}

	return cleanModelText(resp.Text()), nil
}

// cleanModelText removes Markdown fences if the model ignored instructions.
func cleanModelText(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```text).
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return strings.Trim(s, "`")
		}
		s = s[idx+1:]

		if end := strings.LastIndex(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	return strings.TrimSpace(s)
}
