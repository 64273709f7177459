package distill

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mnemo-labs/mnemod/store"
)

// ToolClass groups tool names into capture categories.
type ToolClass string

const (
	ToolClassFileChange ToolClass = "file_change"
	ToolClassCommand    ToolClass = "command"
	ToolClassFileRead   ToolClass = "file_read"
	ToolClassSearch     ToolClass = "search"
	ToolClassOther      ToolClass = "tool"
)

// ClassifyTool maps a tool name onto its capture class.
func ClassifyTool(tool string) ToolClass {
	switch strings.ToLower(tool) {
	case "write", "edit", "multiedit", "patch", "apply_patch":
		return ToolClassFileChange
	case "bash", "shell", "exec", "run":
		return ToolClassCommand
	case "read", "view", "cat", "open":
		return ToolClassFileRead
	case "grep", "glob", "ls", "find", "search", "websearch":
		return ToolClassSearch
	default:
		return ToolClassOther
	}
}

func toolImportance(class ToolClass) int {
	switch class {
	case ToolClassFileChange:
		return importanceFileChange
	case ToolClassCommand:
		return importanceCommand
	case ToolClassFileRead:
		return importanceFileRead
	case ToolClassSearch:
		return importanceSearch
	default:
		return importanceOtherTool
	}
}

// primaryArgKeys are probed in order for the argument that best names what
// the tool acted on.
var primaryArgKeys = []string{"file_path", "path", "filename", "file", "command", "cmd", "pattern", "query", "url"}

// fullContentArgKeys carry whole file or message bodies and are never copied
// into a memory.
var fullContentArgKeys = map[string]bool{
	"content":    true,
	"new_string": true,
	"old_string": true,
	"text":       true,
	"body":       true,
	"data":       true,
}

const (
	maxArgPairs     = 4
	maxArgValueLen  = 80
	maxSourceFiles  = 8
	maxResultDetail = 200
)

// pathPattern finds path-like substrings: at least one directory component
// followed by a file name with an extension.
var pathPattern = regexp.MustCompile(`(?:[A-Za-z0-9_.~-]+/)+[A-Za-z0-9_-]+\.[A-Za-z0-9]{1,8}`)

func (d *Distiller) distillToolUse(event *RawEvent) *Result {
	payload, err := event.toolUsePayload()
	if err != nil {
		return skipped(fmt.Sprintf("invalid tool_use payload: %v", err))
	}
	if strings.TrimSpace(payload.Tool) == "" {
		return skipped("tool_use event has no tool name")
	}
	if d.skipTools[strings.ToLower(payload.Tool)] {
		return skipped(fmt.Sprintf("tool %q is on the skip list", payload.Tool))
	}

	class := ClassifyTool(payload.Tool)
	importance := toolImportance(class)
	if reason, below := d.belowThreshold(importance); below {
		return skipped(reason)
	}

	target := primaryArgument(payload.Args)
	memory := d.newMemory(event, store.MemoryTypeObservation, importance)
	memory.Title = toolTitle(class, payload.Tool, target)
	memory.Content = d.sanitizer.Clean(toolContent(memory.Title, payload))
	memory.Facts = toolFacts(payload)
	memory.Concepts = toolConcepts(payload.Tool, class, target)
	memory.SourceFiles = collectSourceFiles(payload)
	return captured(memory)
}

// toolTitle derives a short past-tense title from the tool class and its
// primary argument.
func toolTitle(class ToolClass, tool, target string) string {
	target = shorten(target, 60)
	switch class {
	case ToolClassFileChange:
		if target != "" {
			return "Edited " + target
		}
		return "Edited files"
	case ToolClassCommand:
		if target != "" {
			return "Ran " + target
		}
		return "Ran a command"
	case ToolClassFileRead:
		if target != "" {
			return "Read " + target
		}
		return "Read a file"
	case ToolClassSearch:
		if target != "" {
			return "Searched for " + target
		}
		return "Searched the workspace"
	default:
		if target != "" {
			return fmt.Sprintf("Used %s on %s", tool, target)
		}
		return "Used " + tool
	}
}

// toolContent summarizes the invocation without copying large payloads:
// a handful of short argument pairs plus the outcome framing.
func toolContent(title string, payload *ToolUsePayload) string {
	var b strings.Builder
	b.WriteString(title)
	if summary := summarizeArgs(payload.Args); summary != "" {
		b.WriteString(" (")
		b.WriteString(summary)
		b.WriteString(")")
	}
	if payload.IsError {
		b.WriteString(". The call failed")
		if head := firstLine(payload.Result); head != "" {
			b.WriteString(": ")
			b.WriteString(shorten(head, maxResultDetail))
		}
	} else {
		b.WriteString(". The call succeeded")
	}
	b.WriteString(".")
	return b.String()
}

// toolFacts frames the outcome as one or two coarse facts.
func toolFacts(payload *ToolUsePayload) []string {
	if payload.IsError {
		facts := []string{payload.Tool + " reported an error"}
		if head := firstLine(payload.Result); head != "" {
			facts = append(facts, shorten(head, maxResultDetail))
		}
		return facts
	}
	return []string{payload.Tool + " completed successfully"}
}

// toolConcepts tags the tool name, its class, and the file extension of the
// primary target when it has one.
func toolConcepts(tool string, class ToolClass, target string) []string {
	concepts := []string{strings.ToLower(tool)}
	if string(class) != concepts[0] {
		concepts = append(concepts, string(class))
	}
	if ext := strings.TrimPrefix(filepath.Ext(target), "."); ext != "" && len(ext) <= 8 {
		concepts = append(concepts, strings.ToLower(ext))
	}
	return concepts
}

// primaryArgument returns the best short string naming what the tool acted
// on, probing well-known argument keys first.
func primaryArgument(args map[string]any) string {
	for _, key := range primaryArgKeys {
		if value, ok := args[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// summarizeArgs renders up to a few short key=value pairs in stable order,
// excluding full-content arguments and anything long.
func summarizeArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var pairs []string
	for _, key := range keys {
		if len(pairs) >= maxArgPairs || fullContentArgKeys[strings.ToLower(key)] {
			continue
		}
		value := scalarString(args[key])
		if value == "" || len(value) > maxArgValueLen {
			continue
		}
		pairs = append(pairs, key+"="+value)
	}
	return strings.Join(pairs, ", ")
}

// scalarString renders scalar argument values; composites are omitted.
func scalarString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return fmt.Sprintf("%t", v)
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%g", v), ".0")
	default:
		return ""
	}
}

// collectSourceFiles gathers path-like strings from the arguments and from
// the result text, deduplicated in encounter order.
func collectSourceFiles(payload *ToolUsePayload) []string {
	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		path = strings.TrimSpace(path)
		if path == "" || seen[path] || len(files) >= maxSourceFiles {
			return
		}
		seen[path] = true
		files = append(files, path)
	}

	keys := make([]string, 0, len(payload.Args))
	for key := range payload.Args {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if fullContentArgKeys[strings.ToLower(key)] {
			continue
		}
		if value, ok := payload.Args[key].(string); ok && looksLikePath(value) {
			add(value)
		}
	}

	for _, match := range pathPattern.FindAllString(payload.Result, maxSourceFiles) {
		add(match)
	}
	return files
}

// looksLikePath reports whether a short string names a file.
func looksLikePath(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > 200 || strings.ContainsAny(value, " \n\t") {
		return false
	}
	return pathPattern.MatchString(value) || (strings.Contains(value, "/") && filepath.Ext(value) != "")
}

// firstLine returns the first non-blank line of text.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
