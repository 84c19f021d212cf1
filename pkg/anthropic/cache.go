package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint set to a 1-hour TTL. The Tier-2 system prompt plus the
// accumulated learning notes are identical across every item in a run,
// so caching them pays for itself after the first request.
func BuildCachedSystemBlocks(texts ...string) []SystemBlock {
	blocks := make([]SystemBlock, len(texts))
	for i, t := range texts {
		blocks[i] = SystemBlock{Text: t}
	}
	if len(blocks) > 0 {
		blocks[len(blocks)-1].CacheControl = &CacheControl{TTL: "1h"}
	}
	return blocks
}
