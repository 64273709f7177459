package distill

import (
	"fmt"
	"strings"

	"github.com/mnemo-labs/mnemod/store"
)

func (d *Distiller) distillPhaseChange(event *RawEvent) *Result {
	payload, err := event.phaseChangePayload()
	if err != nil {
		return skipped(fmt.Sprintf("invalid phase_change payload: %v", err))
	}
	to := strings.TrimSpace(payload.To)
	if to == "" {
		return skipped("phase_change event has no destination phase")
	}
	if reason, below := d.belowThreshold(importancePhase); below {
		return skipped(reason)
	}

	from := strings.TrimSpace(payload.From)
	memory := d.newMemory(event, store.MemoryTypeSessionSummary, importancePhase)
	if from == "" {
		memory.Title = fmt.Sprintf("Started the %s phase", to)
		memory.Content = fmt.Sprintf("The session entered its first phase, %s.", to)
	} else {
		memory.Title = fmt.Sprintf("Moved from %s to %s", from, to)
		memory.Content = fmt.Sprintf("The session finished the %s phase and entered %s.", from, to)
	}
	memory.Phase = to
	memory.Concepts = []string{"phase", strings.ToLower(to)}
	return captured(memory)
}
