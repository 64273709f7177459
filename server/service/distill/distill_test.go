package distill

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mnemo-labs/mnemod/store"
)

func mustEvent(t *testing.T, eventType EventType, payload any) *RawEvent {
	t.Helper()
	event, err := NewEvent(eventType, payload)
	if err != nil {
		t.Fatalf("failed to build event: %v", err)
	}
	event.SessionID = "session-1"
	event.Phase = "implementation"
	return event
}

func TestDistill_Disabled(t *testing.T) {
	d := New(Config{Enabled: false})
	result := d.Distill(mustEvent(t, EventUserMessage, &MessagePayload{Text: "anything"}))
	if result.Captured {
		t.Fatal("disabled distiller captured an event")
	}
	if result.Reason != "distillation disabled" {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestDistill_UnrecognizedType(t *testing.T) {
	d := New(DefaultConfig())
	result := d.Distill(&RawEvent{Type: "telemetry"})
	if result.Captured {
		t.Fatal("unrecognized event type was captured")
	}
	if !strings.Contains(result.Reason, "unrecognized event type") {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestDistill_ToolUse_FileChange(t *testing.T) {
	d := New(DefaultConfig())
	event := mustEvent(t, EventToolUse, &ToolUsePayload{
		Tool:   "Edit",
		Args:   map[string]any{"file_path": "internal/app/server.go", "replace_all": true},
		Result: "ok",
	})

	result := d.Distill(event)
	if !result.Captured {
		t.Fatalf("edit not captured: %s", result.Reason)
	}
	memory := result.Memory
	if memory.Type != store.MemoryTypeObservation {
		t.Errorf("type = %q, want observation", memory.Type)
	}
	if memory.Title != "Edited internal/app/server.go" {
		t.Errorf("title = %q", memory.Title)
	}
	if memory.Importance != importanceFileChange {
		t.Errorf("importance = %d, want %d", memory.Importance, importanceFileChange)
	}
	if memory.SessionID != "session-1" || memory.Phase != "implementation" {
		t.Errorf("provenance not stamped: %+v", memory)
	}
	if len(memory.Facts) != 1 || memory.Facts[0] != "Edit completed successfully" {
		t.Errorf("facts = %v", memory.Facts)
	}
	wantConcepts := map[string]bool{"edit": true, "file_change": true, "go": true}
	for _, concept := range memory.Concepts {
		delete(wantConcepts, concept)
	}
	if len(wantConcepts) != 0 {
		t.Errorf("concepts = %v, missing %v", memory.Concepts, wantConcepts)
	}
	if len(memory.SourceFiles) != 1 || memory.SourceFiles[0] != "internal/app/server.go" {
		t.Errorf("sourceFiles = %v", memory.SourceFiles)
	}
}

func TestDistill_ToolUse_ErrorFraming(t *testing.T) {
	d := New(DefaultConfig())
	event := mustEvent(t, EventToolUse, &ToolUsePayload{
		Tool:    "bash",
		Args:    map[string]any{"command": "make lint"},
		Result:  "exit status 2\nlint: undefined variable",
		IsError: true,
	})

	result := d.Distill(event)
	if !result.Captured {
		t.Fatalf("failed command not captured: %s", result.Reason)
	}
	memory := result.Memory
	if len(memory.Facts) != 2 {
		t.Fatalf("facts = %v, want error framing plus detail", memory.Facts)
	}
	if memory.Facts[0] != "bash reported an error" {
		t.Errorf("facts[0] = %q", memory.Facts[0])
	}
	if !strings.Contains(memory.Facts[1], "exit status 2") {
		t.Errorf("facts[1] = %q", memory.Facts[1])
	}
	if !strings.Contains(memory.Content, "The call failed") {
		t.Errorf("content = %q", memory.Content)
	}
}

func TestDistill_ToolUse_ReadBelowThreshold(t *testing.T) {
	d := New(DefaultConfig())
	event := mustEvent(t, EventToolUse, &ToolUsePayload{
		Tool: "Read",
		Args: map[string]any{"file_path": "docs/notes.md"},
	})

	result := d.Distill(event)
	if result.Captured {
		t.Fatal("file read should fall below the default threshold")
	}
	if !strings.Contains(result.Reason, "below threshold") {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestDistill_ToolUse_SkipList(t *testing.T) {
	d := New(Config{Enabled: true, MinImportance: 1, SkipTools: []string{"Bash"}})
	event := mustEvent(t, EventToolUse, &ToolUsePayload{
		Tool: "bash",
		Args: map[string]any{"command": "ls"},
	})

	result := d.Distill(event)
	if result.Captured {
		t.Fatal("skip-listed tool was captured")
	}
	if !strings.Contains(result.Reason, "skip list") {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestDistill_ToolUse_NeverCopiesLargePayloads(t *testing.T) {
	d := New(DefaultConfig())
	blob := strings.Repeat("package main ", 500)
	event := mustEvent(t, EventToolUse, &ToolUsePayload{
		Tool:   "Write",
		Args:   map[string]any{"file_path": "cmd/app/main.go", "content": blob},
		Result: "wrote 6500 bytes",
	})

	result := d.Distill(event)
	if !result.Captured {
		t.Fatalf("write not captured: %s", result.Reason)
	}
	if strings.Contains(result.Memory.Content, "package main package main") {
		t.Error("content argument was copied into the memory")
	}
	if utf8.RuneCountInString(result.Memory.Content) > 400 {
		t.Errorf("content length = %d, payload detail not capped", utf8.RuneCountInString(result.Memory.Content))
	}
}

func TestDistill_ToolUse_SourceFilesFromResult(t *testing.T) {
	d := New(DefaultConfig())
	event := mustEvent(t, EventToolUse, &ToolUsePayload{
		Tool:   "bash",
		Args:   map[string]any{"command": "go vet ./..."},
		Result: "server/router/api.go:14: unused variable\nstore/db/sqlite.go:9: shadowed err",
	})

	result := d.Distill(event)
	if !result.Captured {
		t.Fatalf("command not captured: %s", result.Reason)
	}
	files := result.Memory.SourceFiles
	want := []string{"server/router/api.go", "store/db/sqlite.go"}
	if len(files) != len(want) {
		t.Fatalf("sourceFiles = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("sourceFiles[%d] = %q, want %q", i, files[i], want[i])
		}
	}
}

func TestDistill_UserMessage(t *testing.T) {
	d := New(DefaultConfig())
	event := mustEvent(t, EventUserMessage, &MessagePayload{
		Text: "We decided to use SQLite for the database. It keeps deployment simple.",
	})

	result := d.Distill(event)
	if !result.Captured {
		t.Fatalf("user message not captured: %s", result.Reason)
	}
	memory := result.Memory
	if memory.Type != store.MemoryTypeUserPrompt {
		t.Errorf("type = %q, want user_prompt", memory.Type)
	}
	if memory.Title != "We decided to use SQLite for the database" {
		t.Errorf("title = %q", memory.Title)
	}
	if memory.Importance != decisionImportanceFloor {
		t.Errorf("importance = %d, want floor %d for a decision cue", memory.Importance, decisionImportanceFloor)
	}
	found := map[string]bool{}
	for _, concept := range memory.Concepts {
		found[concept] = true
	}
	if !found["database"] || !found["deployment"] {
		t.Errorf("concepts = %v, want database and deployment", memory.Concepts)
	}
}

func TestDistill_UserMessage_CaptureDisabled(t *testing.T) {
	d := New(Config{Enabled: true, MinImportance: 1, CaptureMessages: false})
	result := d.Distill(mustEvent(t, EventUserMessage, &MessagePayload{Text: "remember this"}))
	if result.Captured {
		t.Fatal("message captured with capture disabled")
	}
	if result.Reason != "message capture disabled" {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestDistill_AssistantMessage_TooShort(t *testing.T) {
	d := New(DefaultConfig())
	result := d.Distill(mustEvent(t, EventAssistantMessage, &MessagePayload{Text: "Done."}))
	if result.Captured {
		t.Fatal("short assistant message was captured")
	}
	if result.Reason != "message too short to be noteworthy" {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestDistill_AssistantMessage_FactsAndType(t *testing.T) {
	d := New(DefaultConfig())
	text := strings.Join([]string{
		"We decided to restructure the storage layer. Summary of the changes:",
		"",
		"- moved all query construction into the sqlite driver package",
		"- the cache now invalidates on every partial update",
		"- ok",
		"- retention deletes collect ids before the range delete runs",
	}, "\n")

	result := d.Distill(mustEvent(t, EventAssistantMessage, &MessagePayload{Text: text}))
	if !result.Captured {
		t.Fatalf("assistant message not captured: %s", result.Reason)
	}
	memory := result.Memory
	if memory.Type != store.MemoryTypeDecision {
		t.Errorf("type = %q, want decision for a decision cue", memory.Type)
	}
	if memory.Importance != decisionImportanceFloor {
		t.Errorf("importance = %d, want %d", memory.Importance, decisionImportanceFloor)
	}
	wantFacts := []string{
		"moved all query construction into the sqlite driver package",
		"the cache now invalidates on every partial update",
		"retention deletes collect ids before the range delete runs",
	}
	if len(memory.Facts) != len(wantFacts) {
		t.Fatalf("facts = %v, want %v", memory.Facts, wantFacts)
	}
	for i := range wantFacts {
		if memory.Facts[i] != wantFacts[i] {
			t.Errorf("facts[%d] = %q, want %q", i, memory.Facts[i], wantFacts[i])
		}
	}
}

func TestDistill_AssistantMessage_Truncation(t *testing.T) {
	d := New(DefaultConfig())
	text := strings.Repeat("observation ", 400)

	result := d.Distill(mustEvent(t, EventAssistantMessage, &MessagePayload{Text: text}))
	if !result.Captured {
		t.Fatalf("long assistant message not captured: %s", result.Reason)
	}
	if got := utf8.RuneCountInString(result.Memory.Content); got > maxMessageContent {
		t.Errorf("content length = %d, want at most %d", got, maxMessageContent)
	}
}

func TestDistill_PhaseChange(t *testing.T) {
	d := New(DefaultConfig())
	event := mustEvent(t, EventPhaseChange, &PhaseChangePayload{From: "planning", To: "implementation"})

	result := d.Distill(event)
	if !result.Captured {
		t.Fatalf("phase change not captured: %s", result.Reason)
	}
	memory := result.Memory
	if memory.Type != store.MemoryTypeSessionSummary {
		t.Errorf("type = %q, want session_summary", memory.Type)
	}
	if memory.Title != "Moved from planning to implementation" {
		t.Errorf("title = %q", memory.Title)
	}
	if memory.Phase != "implementation" {
		t.Errorf("phase = %q, want destination phase", memory.Phase)
	}
	found := false
	for _, concept := range memory.Concepts {
		if concept == "implementation" {
			found = true
		}
	}
	if !found {
		t.Errorf("concepts = %v, want destination phase name", memory.Concepts)
	}
}

func TestDistill_PhaseChange_Start(t *testing.T) {
	d := New(DefaultConfig())
	event := mustEvent(t, EventPhaseChange, &PhaseChangePayload{To: "planning"})

	result := d.Distill(event)
	if !result.Captured {
		t.Fatalf("initial phase change not captured: %s", result.Reason)
	}
	if result.Memory.Title != "Started the planning phase" {
		t.Errorf("title = %q", result.Memory.Title)
	}
}

func TestDistill_SanitizesSecrets(t *testing.T) {
	d := New(DefaultConfig())
	event := mustEvent(t, EventUserMessage, &MessagePayload{
		Text: `Configure the client with api_key="abc123" before the rollout starts.`,
	})

	result := d.Distill(event)
	if !result.Captured {
		t.Fatalf("message not captured: %s", result.Reason)
	}
	if strings.Contains(result.Memory.Content, "abc123") {
		t.Errorf("content leaks secret: %q", result.Memory.Content)
	}
	if !strings.Contains(result.Memory.Content, "[REDACTED]") {
		t.Errorf("content = %q, want redaction token", result.Memory.Content)
	}
}

func TestDistillSession(t *testing.T) {
	d := New(DefaultConfig())
	events := []*RawEvent{
		mustEvent(t, EventPhaseChange, &PhaseChangePayload{To: "implementation"}),
		mustEvent(t, EventToolUse, &ToolUsePayload{Tool: "Edit", Args: map[string]any{"file_path": "a/b.go"}}),
		mustEvent(t, EventToolUse, &ToolUsePayload{Tool: "Read", Args: map[string]any{"file_path": "a/b.go"}}),
		mustEvent(t, EventToolUse, &ToolUsePayload{Tool: "Write", Args: map[string]any{"file_path": "a/c.go"}}),
		mustEvent(t, EventPhaseChange, &PhaseChangePayload{From: "implementation", To: "review"}),
	}

	memories := d.DistillSession(events)
	if len(memories) != 4 {
		t.Fatalf("got %d memories, want 4 (read falls below threshold)", len(memories))
	}

	closing := memories[len(memories)-1]
	if closing.Type != store.MemoryTypeSessionSummary {
		t.Fatalf("closing memory type = %q", closing.Type)
	}
	foundCount := false
	for _, fact := range closing.Facts {
		if strings.Contains(fact, "2 memories captured") {
			foundCount = true
		}
	}
	if !foundCount {
		t.Errorf("closing facts = %v, want phase capture count", closing.Facts)
	}
}

func TestClassifyTool(t *testing.T) {
	tests := []struct {
		tool string
		want ToolClass
	}{
		{"Edit", ToolClassFileChange},
		{"write", ToolClassFileChange},
		{"Bash", ToolClassCommand},
		{"Read", ToolClassFileRead},
		{"grep", ToolClassSearch},
		{"Glob", ToolClassSearch},
		{"WebFetch", ToolClassOther},
	}
	for _, tt := range tests {
		if got := ClassifyTool(tt.tool); got != tt.want {
			t.Errorf("ClassifyTool(%q) = %q, want %q", tt.tool, got, tt.want)
		}
	}
}
