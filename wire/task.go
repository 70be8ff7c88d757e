package wire

// SetTaskPayload is the full pipeline configuration sent once per
// session as the data of a set_task message. Field names and nesting
// match the server's configuration surface exactly, so the core never
// needs to remap keys.
type SetTaskPayload struct {
	Source              SourceTask   `json:"source"`
	Targets             []TargetTask `json:"targets"`
	InputStream         InputStream  `json:"input_stream"`
	OutputStream        OutputStream `json:"output_stream"`
	AllowedMessageTypes []string     `json:"allowed_message_types,omitempty"`
	Silent              bool         `json:"silent,omitempty"`
	Debug               bool         `json:"debug,omitempty"`
	Timeout             float64      `json:"timeout,omitempty"`
}

// InputStream wraps the input_stream.source.* descriptor.
type InputStream struct {
	Source StreamTask `json:"source"`
}

// OutputStream wraps the output_stream.target.* descriptor.
type OutputStream struct {
	Target StreamTask `json:"target"`
}

// SourceTask is the source.* section of SetTaskPayload.
type SourceTask struct {
	Lang          string         `json:"lang"`
	Transcription map[string]any `json:"transcription,omitempty"`
}

// TargetTask is one entry of the targets[] array.
type TargetTask struct {
	Lang        string          `json:"lang"`
	Translation TranslationTask `json:"translation"`
}

// TranslationTask is the targets[].translation.* section.
type TranslationTask struct {
	SpeechGeneration map[string]any `json:"speech_generation,omitempty"`
}

// StreamTask is the {input,output}_stream.{source,target} descriptor.
type StreamTask struct {
	Type       string `json:"type,omitempty"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}
