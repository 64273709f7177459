package context

import (
	"fmt"
	"strings"
	"time"

	"github.com/mnemo-labs/mnemod/store"
)

func (b *Builder) formatEntry(memory *store.Memory) string {
	switch b.config.Format {
	case FormatBullet:
		return formatBullet(memory)
	case FormatStructured:
		return formatStructured(memory)
	default:
		return formatTimeline(memory)
	}
}

// formatTimeline renders a verbose block: heading, metadata line, full
// content, and facts as list items.
func formatTimeline(memory *store.Memory) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("### %s\n", memory.Title))

	meta := fmt.Sprintf("%s | %s | importance %d",
		time.Unix(memory.CreatedTs, 0).UTC().Format("2006-01-02 15:04"),
		memory.Type, memory.Importance)
	if memory.Phase != "" {
		meta += " | phase " + memory.Phase
	}
	sb.WriteString(meta + "\n")

	sb.WriteString(memory.Content + "\n")
	for _, fact := range memory.Facts {
		sb.WriteString("- " + fact + "\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

// formatBullet renders one compact line per memory.
func formatBullet(memory *store.Memory) string {
	return fmt.Sprintf("- [%s] %s: %s\n", memory.Type, memory.Title, snippet(memory.Content, 120))
}

// formatStructured renders a tagged block for consumers that parse context.
func formatStructured(memory *store.Memory) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<memory id=%d type=%q importance=%d>\n", memory.ID, memory.Type, memory.Importance))
	sb.WriteString("title: " + memory.Title + "\n")
	if len(memory.Concepts) > 0 {
		sb.WriteString("concepts: " + strings.Join(memory.Concepts, ", ") + "\n")
	}
	sb.WriteString(memory.Content + "\n")
	sb.WriteString("</memory>\n")
	return sb.String()
}

// snippet truncates content to maxRunes on a rune boundary.
func snippet(content string, maxRunes int) string {
	content = strings.ReplaceAll(content, "\n", " ")
	runes := []rune(content)
	if len(runes) <= maxRunes {
		return content
	}
	return string(runes[:maxRunes]) + "..."
}
