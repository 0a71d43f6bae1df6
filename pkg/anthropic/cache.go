package anthropic

// CachedSystem returns a single system block with a prompt-cache
// breakpoint. Long fixed instructions shared by many calls go here.
func CachedSystem(text, ttl string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: ttl}}}
}
