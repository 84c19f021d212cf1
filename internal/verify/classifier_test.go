package verify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peptide-index/stockwatch/pkg/anthropic"

	"github.com/peptide-index/stockwatch/internal/model"
)

func ptr(f float64) *float64 { return &f }

func TestReconcileAction(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		verdict  model.AIVerdict
		expected float64
		want     model.Action
	}{
		{
			name:    "keep passes through",
			verdict: model.AIVerdict{ListingActive: true, CorrectProduct: true, InStock: true, Action: model.ActionKeep},
			want:    model.ActionKeep,
		},
		{
			name:    "remove dead on inactive listing",
			verdict: model.AIVerdict{ListingActive: false, Action: model.ActionRemoveDead},
			want:    model.ActionRemoveDead,
		},
		{
			name:    "remove dead on active listing coerced",
			verdict: model.AIVerdict{ListingActive: true, CorrectProduct: true, InStock: true, Action: model.ActionRemoveDead},
			want:    model.ActionKeep,
		},
		{
			name:    "flag wrong needs identity mismatch",
			verdict: model.AIVerdict{ListingActive: true, CorrectProduct: false, Action: model.ActionFlagWrong},
			want:    model.ActionFlagWrong,
		},
		{
			name:    "flag wrong on correct product coerced",
			verdict: model.AIVerdict{ListingActive: true, CorrectProduct: true, InStock: true, Action: model.ActionFlagWrong},
			want:    model.ActionKeep,
		},
		{
			name:    "mark oos needs absence",
			verdict: model.AIVerdict{ListingActive: true, CorrectProduct: true, InStock: false, Action: model.ActionMarkOOS},
			want:    model.ActionMarkOOS,
		},
		{
			name:    "mark oos while reporting in stock coerced",
			verdict: model.AIVerdict{ListingActive: true, CorrectProduct: true, InStock: true, Action: model.ActionMarkOOS},
			want:    model.ActionKeep,
		},
		{
			name:    "mark instock",
			verdict: model.AIVerdict{ListingActive: true, CorrectProduct: true, InStock: true, Action: model.ActionMarkInStock},
			want:    model.ActionMarkInStock,
		},
		{
			name:     "price update above tolerance",
			verdict:  model.AIVerdict{ListingActive: true, CorrectProduct: true, InStock: true, DetectedPrice: ptr(60), Action: model.ActionUpdatePrice},
			expected: 44.99,
			want:     model.ActionUpdatePrice,
		},
		{
			name:     "price update within tolerance coerced",
			verdict:  model.AIVerdict{ListingActive: true, CorrectProduct: true, InStock: true, DetectedPrice: ptr(46), Action: model.ActionUpdatePrice},
			expected: 44.99,
			want:     model.ActionKeep,
		},
		{
			name:     "price update without detected price coerced",
			verdict:  model.AIVerdict{ListingActive: true, CorrectProduct: true, InStock: true, Action: model.ActionUpdatePrice},
			expected: 44.99,
			want:     model.ActionKeep,
		},
		{
			name:    "unknown action coerced",
			verdict: model.AIVerdict{ListingActive: true, Action: "DELETE_ROW"},
			want:    model.ActionKeep,
		},
		{
			name:    "empty action coerced",
			verdict: model.AIVerdict{ListingActive: true, CorrectProduct: true, InStock: true},
			want:    model.ActionKeep,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ReconcileAction(tc.verdict, tc.expected, 0.10))
		})
	}
}

func TestCleanJSON(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"action":"KEEP"}`, `{"action":"KEEP"}`},
		{"fenced", "```json\n{\"action\":\"KEEP\"}\n```", `{"action":"KEEP"}`},
		{"fence without language", "```\n{\"action\":\"KEEP\"}\n```", `{"action":"KEEP"}`},
		{"leading prose", "Here is my verdict:\n{\"action\":\"KEEP\"}", `{"action":"KEEP"}`},
		{"trailing prose", "{\"action\":\"KEEP\"}\nLet me know if you need more.", `{"action":"KEEP"}`},
		{"nested braces", `{"reasoning":"uses {curly} text","action":"KEEP"}`, `{"reasoning":"uses {curly} text","action":"KEEP"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, cleanJSON(tc.in))
		})
	}
}

type cannedClient struct {
	response string
	err      error
	requests []anthropic.MessageRequest
}

func (c *cannedClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: c.response}},
	}, nil
}

func TestAnthropicClassifier_Classify(t *testing.T) {
	t.Parallel()

	client := &cannedClient{response: "```json\n" + `{
		"listing_active": true,
		"correct_product": true,
		"in_stock": false,
		"detected_price": 44.99,
		"detected_name": "BPC-157 10mg",
		"page_title": "BPC-157 | Amino Asylum",
		"action": "MARK_OOS",
		"confidence": 1.4,
		"reasoning": "sold out banner under the add-to-cart button"
	}` + "\n```"}

	c := NewAnthropicClassifier(client, "claude-haiku-4-5-20251001", 1024)
	verdict, err := c.Classify(context.Background(), ClassifyRequest{
		Item:        model.TrackedItem{VendorName: "Amino Asylum", ExpectedName: "BPC-157 10mg", ExpectedPrice: 44.99},
		FetchStatus: "200",
		Excerpt:     "Sold out",
	})
	require.NoError(t, err)

	assert.True(t, verdict.ListingActive)
	assert.False(t, verdict.InStock)
	assert.Equal(t, model.ActionMarkOOS, verdict.Action)
	require.NotNil(t, verdict.DetectedPrice)
	assert.InDelta(t, 44.99, *verdict.DetectedPrice, 0.001)
	assert.Equal(t, 1.0, verdict.Confidence, "confidence clamped to [0,1]")

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Contains(t, req.Messages[0].Content, "Amino Asylum")
	assert.Contains(t, req.Messages[0].Content, "Sold out")
	require.NotEmpty(t, req.System)
	require.NotNil(t, req.Temperature)
	assert.Zero(t, *req.Temperature)
}

func TestAnthropicClassifier_MalformedResponse(t *testing.T) {
	t.Parallel()

	client := &cannedClient{response: "I cannot determine stock status from this page."}
	c := NewAnthropicClassifier(client, "claude-haiku-4-5-20251001", 1024)

	_, err := c.Classify(context.Background(), ClassifyRequest{
		Item: model.TrackedItem{ExpectedName: "BPC-157"},
	})
	require.Error(t, err)
}

func TestBuildSystemBlocks(t *testing.T) {
	t.Parallel()

	t.Run("no notes", func(t *testing.T) {
		t.Parallel()
		blocks := buildSystemBlocks(nil)
		assert.Len(t, blocks, 1)
		assert.NotNil(t, blocks[0].CacheControl)
	})

	t.Run("notes appended after stable base prompt", func(t *testing.T) {
		t.Parallel()
		blocks := buildSystemBlocks([]model.LearningNote{
			{Text: "Vendor X gates prices behind login"},
			{Text: "Treat coming-soon pages as out of stock"},
		})
		assert.Len(t, blocks, 2)
		assert.Equal(t, systemPrompt, blocks[0].Text)
		assert.Nil(t, blocks[0].CacheControl)
		assert.NotNil(t, blocks[1].CacheControl)
		assert.Contains(t, blocks[1].Text, "Vendor X gates prices behind login")
		assert.Contains(t, blocks[1].Text, "Treat coming-soon pages as out of stock")
		// Creation order preserved.
		assert.Less(t,
			strings.Index(blocks[1].Text, "Vendor X"),
			strings.Index(blocks[1].Text, "coming-soon"))
	})
}

func TestBuildUserPrompt(t *testing.T) {
	t.Parallel()

	item := model.TrackedItem{
		VendorName:    "Amino Asylum",
		ProductURL:    "https://example.com/p/bpc-157",
		ExpectedName:  "BPC-157 10mg",
		ExpectedPrice: 44.99,
		InStock:       true,
		LastError:     "product page not found",
	}
	got := buildUserPrompt(item, "404", "excerpt body here")

	assert.Contains(t, got, "Amino Asylum")
	assert.Contains(t, got, "https://example.com/p/bpc-157")
	assert.Contains(t, got, "BPC-157 10mg")
	assert.Contains(t, got, "$44.99")
	assert.Contains(t, got, "in stock")
	assert.Contains(t, got, "product page not found")
	assert.Contains(t, got, "404")
	assert.Contains(t, got, "excerpt body here")
}
