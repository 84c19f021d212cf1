package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageResponse_Text(t *testing.T) {
	t.Parallel()

	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "first"},
		{Type: "text", Text: ""},
		{Type: "text", Text: "second"},
	}}
	assert.Equal(t, "first\nsecond", resp.Text())

	assert.Empty(t, (&MessageResponse{}).Text())
}

func TestTokenUsage_EstimateCost(t *testing.T) {
	t.Parallel()

	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 4.80, u.EstimateCost("claude-haiku-4-5-20251001"), 0.001)
	assert.Zero(t, u.EstimateCost("unknown-model"))

	cached := TokenUsage{CacheReadInputTokens: 10_000_000}
	assert.InDelta(t, 0.80, cached.EstimateCost("claude-haiku-4-5-20251001"), 0.001)
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	t.Parallel()

	blocks := BuildCachedSystemBlocks("prompt", "notes")
	assert.Len(t, blocks, 2)
	assert.Nil(t, blocks[0].CacheControl)
	assert.NotNil(t, blocks[1].CacheControl)
	assert.Equal(t, "1h", blocks[1].CacheControl.TTL)

	assert.Empty(t, BuildCachedSystemBlocks())
}

func TestToSDKMessages_Roles(t *testing.T) {
	t.Parallel()

	out := toSDKMessages([]Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})
	assert.Len(t, out, 2)
	assert.Equal(t, "user", string(out[0].Role))
	assert.Equal(t, "assistant", string(out[1].Role))
}
