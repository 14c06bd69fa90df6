package painter

import (
	"fmt"
	"time"
)

// DiagnosticKind classifies a Diagnostic.
type DiagnosticKind uint8

const (
	// DiagnosticProgramFailed reports a program that could not be created.
	// The layer draws nothing until the GPU context is reset.
	DiagnosticProgramFailed DiagnosticKind = iota + 1
	// DiagnosticDrawFailed reports a layer whose draws failed this frame.
	DiagnosticDrawFailed
	// DiagnosticLayerTiming reports the CPU time spent encoding a layer,
	// emitted when GPU timing is requested but timestamp queries are not
	// available.
	DiagnosticLayerTiming
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticProgramFailed:
		return "program-failed"
	case DiagnosticDrawFailed:
		return "draw-failed"
	case DiagnosticLayerTiming:
		return "layer-timing"
	}
	return fmt.Sprintf("DiagnosticKind(%d)", uint8(k))
}

// Diagnostic is an event raised while rendering. Diagnostics never abort
// a frame.
type Diagnostic struct {
	Kind    DiagnosticKind
	LayerID string
	// Program is the key of the failed program.
	Program  string
	Pass     RenderPass
	Duration time.Duration
	Err      error
}

func (d Diagnostic) String() string {
	switch d.Kind {
	case DiagnosticLayerTiming:
		return fmt.Sprintf("%s: layer %q %s pass %s", d.Kind, d.LayerID, d.Pass, d.Duration)
	case DiagnosticProgramFailed:
		return fmt.Sprintf("%s: layer %q program %s: %v", d.Kind, d.LayerID, d.Program, d.Err)
	}
	return fmt.Sprintf("%s: layer %q: %v", d.Kind, d.LayerID, d.Err)
}
