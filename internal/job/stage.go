// Package job defines the transcription job model shared by the transport,
// push, and tracker layers.
package job

// Stage is a named phase of job execution reported by the backend.
type Stage string

const (
	StagePending             Stage = "pending"
	StageProcessing          Stage = "processing"
	StageExtractingAudio     Stage = "extracting_audio"
	StageTranscribing        Stage = "transcribing"
	StageIdentifyingSpeakers Stage = "identifying_speakers"
	StageCompleted           Stage = "completed"
	StageFailed              Stage = "failed"
)

// Terminal reports whether no further transitions are accepted.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Known reports whether s is one of the stages the backend emits.
func (s Stage) Known() bool {
	switch s {
	case StagePending, StageProcessing, StageExtractingAudio,
		StageTranscribing, StageIdentifyingSpeakers, StageCompleted, StageFailed:
		return true
	default:
		return false
	}
}
