package categorize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/openfinance-sync/internal/domain"
)

// mockGenerator replies with fixed text and records prompts.
type mockGenerator struct {
	reply   func(prompt string) string
	err     error
	prompts []string
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	return m.reply(prompt), nil
}

func doc(id, desc string) domain.TransactionDoc {
	return domain.TransactionDoc{
		ID:          id,
		Description: desc,
		Amount:      decimal.NewFromInt(50),
		Type:        domain.TransactionExpense,
		Category:    domain.DefaultCategory,
	}
}

func TestCategorize(t *testing.T) {
	gen := &mockGenerator{reply: func(string) string {
		return "```json\n" + `[
			{"id":"tx-1","category":"groceries"},
			{"id":"tx-2","category":"Spaceships"},
			{"id":"","category":"Travel"}
		]` + "\n```"
	}}
	c := New(gen, nil)

	got, err := c.Categorize(context.Background(), []domain.TransactionDoc{doc("tx-1", "PAO DE ACUCAR"), doc("tx-2", "???")})
	if err != nil {
		t.Fatalf("Categorize() error = %v", err)
	}
	if len(got) != 1 || got["tx-1"] != "Groceries" {
		t.Errorf("Categorize() = %v, want only tx-1 -> Groceries", got)
	}
	if !strings.Contains(gen.prompts[0], "PAO DE ACUCAR") || !strings.Contains(gen.prompts[0], "Bank Fees") {
		t.Errorf("prompt is missing transactions or taxonomy:\n%s", gen.prompts[0])
	}
}

func TestCategorize_Chunks(t *testing.T) {
	gen := &mockGenerator{reply: func(string) string { return "[]" }}
	c := New(gen, []string{"Other"})

	docs := make([]domain.TransactionDoc, 0, 250)
	for i := range 250 {
		docs = append(docs, doc(fmt.Sprintf("tx-%d", i), "x"))
	}
	if _, err := c.Categorize(context.Background(), docs); err != nil {
		t.Fatal(err)
	}
	if len(gen.prompts) != 3 {
		t.Errorf("requests = %d, want 3", len(gen.prompts))
	}
}

func TestCategorize_Errors(t *testing.T) {
	tests := []struct {
		name string
		gen  *mockGenerator
	}{
		{"generator fails", &mockGenerator{err: errors.New("quota")}},
		{"empty reply", &mockGenerator{reply: func(string) string { return "  " }}},
		{"not json", &mockGenerator{reply: func(string) string { return "sorry, I can't" }}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.gen, nil).Categorize(context.Background(), []domain.TransactionDoc{doc("tx-1", "x")})
			if err == nil {
				t.Error("Categorize() error = nil")
			}
		})
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`[{"id":"a"}]`, `[{"id":"a"}]`},
		{"```json\n[1]\n```", "[1]"},
		{"Here you go: [1, 2] hope it helps", "[1, 2]"},
	}
	for _, tt := range tests {
		if got := cleanModelJSON(tt.in); got != tt.want {
			t.Errorf("cleanModelJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
