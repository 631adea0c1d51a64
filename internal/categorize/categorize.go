// Package categorize assigns categories to transactions the aggregator left
// uncategorized, using a Gemini model.
package categorize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/openfinance-sync/internal/domain"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// maxPerRequest bounds how many transactions go into one prompt.
const maxPerRequest = 100

// DefaultCategories is the taxonomy offered to the model.
var DefaultCategories = []string{
	"Food & Dining",
	"Groceries",
	"Transportation",
	"Housing",
	"Utilities",
	"Health",
	"Education",
	"Entertainment",
	"Shopping",
	"Travel",
	"Salary",
	"Transfers",
	"Investments",
	"Taxes",
	"Bank Fees",
}

// Generator produces a text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator is the Generator backed by the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini client from the ambient credentials
// (GOOGLE_API_KEY or Vertex AI application default credentials).
func NewGeminiGenerator(ctx context.Context, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return resp.Text(), nil
}

// Categorizer maps transaction ids to categories from a fixed taxonomy.
type Categorizer struct {
	gen        Generator
	categories map[string]string // lower-cased name -> canonical name
	prompt     string
}

// New creates a Categorizer. A nil or empty categories list uses DefaultCategories.
func New(gen Generator, categories []string) *Categorizer {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	known := make(map[string]string, len(categories))
	for _, c := range categories {
		known[strings.ToLower(c)] = c
	}
	return &Categorizer{
		gen:        gen,
		categories: known,
		prompt:     buildPrompt(categories),
	}
}

type promptTx struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Type        string `json:"type"`
}

type answer struct {
	ID       string `json:"id"`
	Category string `json:"category"`
}

// Categorize returns a category per transaction id. Transactions the model
// could not place, or placed outside the taxonomy, are absent from the result.
func (c *Categorizer) Categorize(ctx context.Context, docs []domain.TransactionDoc) (map[string]string, error) {
	result := make(map[string]string, len(docs))

	for start := 0; start < len(docs); start += maxPerRequest {
		end := min(start+maxPerRequest, len(docs))

		chunk := make([]promptTx, 0, end-start)
		for _, d := range docs[start:end] {
			chunk = append(chunk, promptTx{
				ID:          d.ID,
				Description: d.Description,
				Amount:      d.Amount.StringFixed(2),
				Type:        string(d.Type),
			})
		}
		payload, err := json.Marshal(chunk)
		if err != nil {
			return nil, fmt.Errorf("categorize: encode transactions: %w", err)
		}

		raw, err := c.gen.Generate(ctx, c.prompt+"\nTransactions:\n"+string(payload))
		if err != nil {
			return nil, fmt.Errorf("categorize: %w", err)
		}
		if strings.TrimSpace(raw) == "" {
			return nil, fmt.Errorf("categorize: empty response from model")
		}

		var answers []answer
		if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &answers); err != nil {
			return nil, fmt.Errorf("categorize: unmarshal JSON: %w", err)
		}

		for _, a := range answers {
			canonical, ok := c.categories[strings.ToLower(strings.TrimSpace(a.Category))]
			if !ok || a.ID == "" {
				continue
			}
			result[a.ID] = canonical
		}
	}

	return result, nil
}

func buildPrompt(categories []string) string {
	var b strings.Builder
	b.WriteString("You categorize Brazilian bank and credit card transactions.\n\n")
	b.WriteString("Use ONLY the following categories:\n")
	for _, c := range categories {
		b.WriteString("  - " + c + "\n")
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Output a JSON array of objects with fields \"id\" and \"category\".\n")
	b.WriteString("- Category must be EXACTLY one of the names above.\n")
	b.WriteString("- If you are unsure, leave the transaction out.\n")
	b.WriteString("Return ONLY valid raw JSON. Do NOT wrap the response in code fences.\n")
	return b.String()
}

// cleanModelJSON strips Markdown fences and any text around the JSON array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}
