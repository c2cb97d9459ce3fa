package pulse

// ProgressEmitter defines the domain-agnostic interface for emitting progress updates
// during long-running extraction runs.
//
// Domain packages can use these methods directly or wrap an emitter with
// convenience methods of their own.
type ProgressEmitter interface {
	// EmitStage announces the start of a processing stage
	EmitStage(stage string, message string)

	// EmitProgress announces batch progress with count and optional metadata.
	EmitProgress(count int, metadata map[string]interface{})

	// EmitComplete announces successful completion with summary
	EmitComplete(summary map[string]interface{})

	// EmitError announces an error during processing
	EmitError(stage string, err error)

	// EmitInfo emits general informational message
	EmitInfo(message string)
}

// NopEmitter discards every emission.
type NopEmitter struct{}

func (NopEmitter) EmitStage(string, string)                {}
func (NopEmitter) EmitProgress(int, map[string]interface{}) {}
func (NopEmitter) EmitComplete(map[string]interface{})      {}
func (NopEmitter) EmitError(string, error)                  {}
func (NopEmitter) EmitInfo(string)                          {}

// OrNop returns e, or a NopEmitter when e is nil.
func OrNop(e ProgressEmitter) ProgressEmitter {
	if e == nil {
		return NopEmitter{}
	}
	return e
}
