// Package envelope holds the data types exchanged over the Mesh's
// WebSockets and pub/sub bus: transcripts, intents, design specs,
// components, insights, and the control envelopes that carry them.
package envelope

import "time"

// Kind discriminates an outgoing WS envelope or a bus payload, mirroring
// the duck-typed "kind" dispatch spec.md describes in §3/§9.
type Kind string

const (
	KindTranscript     Kind = "transcript"
	KindPartial        Kind = "partial"
	KindFinal          Kind = "final"
	KindIntent         Kind = "intent"
	KindDesignSpec     Kind = "design_spec"
	KindComponent      Kind = "component"
	KindInsight        Kind = "insight"
	KindError          Kind = "error"
	KindServiceStatus  Kind = "service_status"
	KindSlow           Kind = "slow"
	KindAudioChunk     Kind = "audio_chunk"
	KindEditComponent  Kind = "edit_component"
	KindControlSession Kind = "control_session"
	KindPingCustom     Kind = "ping_custom"
)

// TranscriptRecord is the §3 Transcript Record. ts_start/ts_end are
// utterance-relative (Open Question decision, see SPEC_FULL.md §6.2):
// they reset to 0 at the start of each new utterance, not session-global.
type TranscriptRecord struct {
	Kind        Kind     `json:"kind"`
	SessionID   string   `json:"session_id"`
	UtteranceID string   `json:"utterance_id"`
	MsgID       string   `json:"msg_id"`
	Text        string   `json:"text"`
	TsStart     float64  `json:"ts_start"`
	TsEnd       float64  `json:"ts_end"`
	Speaker     *string  `json:"speaker,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// IntentRecord is the §3 Intent Record. Component/styles are lowercased,
// brand_refs are title-cased, by the extractor that produces it.
type IntentRecord struct {
	Kind        Kind     `json:"kind"`
	UtteranceID string   `json:"utterance_id"`
	Component   string   `json:"component"`
	Styles      []string `json:"styles"`
	BrandRefs   []string `json:"brand_refs"`
	Confidence  float64  `json:"confidence"`
	Speaker     *string  `json:"speaker,omitempty"`
}

// DesignSpec is the §3 Design Spec produced by the Trigger/Mapper (C9).
type DesignSpec struct {
	Kind        Kind              `json:"kind"`
	SpecID      string            `json:"spec_id"`
	Component   string            `json:"component"`
	ThemeTokens map[string]string `json:"theme_tokens"`
	Interaction *string           `json:"interaction,omitempty"`
	SourceUtts  []string          `json:"source_utts"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ComponentRecord is the §3 Component Record, produced by the (stub)
// code generator collaborator.
type ComponentRecord struct {
	Kind         Kind      `json:"kind"`
	SpecID       string    `json:"spec_id"`
	JSX          string    `json:"jsx"`
	NamedExports []string  `json:"named_exports"`
	Tailwind     bool      `json:"tailwind"`
	LintPassed   bool      `json:"lint_passed"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// InsightRecord is produced by the (stubbed) sentiment/demographic
// collaborators.
type InsightRecord struct {
	Kind                 Kind           `json:"kind"`
	SpecID               string         `json:"spec_id"`
	SentimentHistogram   map[string]int `json:"sentiment_histogram"`
	DemographicBreakdown map[string]int `json:"demographic_breakdown"`
	TopPosts             []string       `json:"top_posts"`
	GeneratedAt          time.Time      `json:"generated_at"`
}

// SlowEnvelope is the §6 `slow` control message: the Transcription
// Pool's backpressure hint to the originating client, per §4.4's "emit
// a slow control message to the originating client".
type SlowEnvelope struct {
	Kind        Kind   `json:"kind"`
	ServiceName string `json:"service_name"`
	Message     string `json:"message"`
}

// ErrorEnvelope is the §6 `error` control message.
type ErrorEnvelope struct {
	Kind      Kind    `json:"kind"`
	Message   string  `json:"message"`
	Detail    *string `json:"detail,omitempty"`
	ErrorCode *string `json:"error_code,omitempty"`
}

// ServiceStatus is the §6 `service_status` control message.
type ServiceStatus string

const (
	StatusUp       ServiceStatus = "up"
	StatusDown     ServiceStatus = "down"
	StatusDegraded ServiceStatus = "degraded"
)

type ServiceStatusEnvelope struct {
	Kind        Kind          `json:"kind"`
	ServiceName string        `json:"service_name"`
	Status      ServiceStatus `json:"status"`
	Message     *string       `json:"message,omitempty"`
}

// AudioChunkMessage is the §6 client→server `audio_chunk` message.
type AudioChunkMessage struct {
	Kind           Kind    `json:"kind"`
	SessionID      string  `json:"session_id"`
	DataB64        string  `json:"data_b64"`
	SequenceID     *int64  `json:"sequence_id,omitempty"`
	TimestampClient *int64 `json:"timestamp_client,omitempty"`
}

// EditComponentMessage is the §6 client→server `edit_component` message.
type EditComponentMessage struct {
	Kind      Kind   `json:"kind"`
	SessionID string `json:"session_id"`
	SpecID    string `json:"spec_id"`
	PatchType string `json:"patch_type"`
	Code      string `json:"code"`
}

// ControlSessionMessage is the §6 client→server `control_session` message.
type ControlSessionMessage struct {
	Kind      Kind                   `json:"kind"`
	SessionID string                 `json:"session_id"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// InboundEnvelope is used to peek at the "kind" discriminator of a raw
// client→server message before dispatching to a typed handler.
type InboundEnvelope struct {
	Kind Kind `json:"kind"`
}

// BusChannel names the §6 bus channels.
type BusChannel string

const (
	ChannelTranscripts  BusChannel = "transcripts"
	ChannelIntents      BusChannel = "intents"
	ChannelDesignSpecs  BusChannel = "design_specs"
	ChannelComponents   BusChannel = "components"
	ChannelInsights     BusChannel = "insights"
	ChannelServiceStatus BusChannel = "service_status"
)

// KindForChannel maps a bus channel name to the outgoing envelope kind
// broadcast to clients, per §4.8's fan-out handler.
func KindForChannel(channel BusChannel) (Kind, bool) {
	switch channel {
	case ChannelTranscripts:
		return KindTranscript, true
	case ChannelIntents:
		return KindIntent, true
	case ChannelDesignSpecs:
		return KindDesignSpec, true
	case ChannelComponents:
		return KindComponent, true
	case ChannelInsights:
		return KindInsight, true
	case ChannelServiceStatus:
		return KindServiceStatus, true
	default:
		return "", false
	}
}
