package knowledge

import (
	"context"
	"fmt"
	"strings"
)

// charsPerToken is the truncation heuristic used when assembling agent
// context: one token is counted as four characters.
const charsPerToken = 4

const defaultMaxTokens = 4000

// AssembleContext concatenates an agent's eligible knowledge entries into
// one prompt block, newest entries first, truncated to the token budget.
// Returns "" when the agent has no usable knowledge.
func (s *Store) AssembleContext(ctx context.Context, agentID string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	budget := maxTokens * charsPerToken

	entries, err := s.contextEntries(ctx, agentID)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}

	var b strings.Builder
	for _, entry := range entries {
		block := formatContextBlock(&entry)
		if block == "" {
			continue
		}

		remaining := budget - b.Len()
		if remaining <= 0 {
			break
		}
		if len(block) > remaining {
			block = truncateRunes(block, remaining)
			if block == "" {
				break
			}
			b.WriteString(block)
			break
		}
		b.WriteString(block)
	}

	return strings.TrimSpace(b.String()), nil
}

func formatContextBlock(entry *Entry) string {
	content := strings.TrimSpace(entry.Content)
	if content == "" {
		content = strings.TrimSpace(entry.Summary)
	}
	if content == "" {
		return ""
	}
	return fmt.Sprintf("## %s\n\n%s\n\n", entry.Filename, content)
}

// truncateRunes cuts a string to at most maxBytes without splitting a
// UTF-8 sequence.
func truncateRunes(value string, maxBytes int) string {
	if len(value) <= maxBytes {
		return value
	}
	for maxBytes > 0 && !isRuneStart(value[maxBytes]) {
		maxBytes--
	}
	return value[:maxBytes]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
