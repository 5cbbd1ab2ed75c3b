package job

// TranscriptWord is a single recognized word with optional timing.
type TranscriptWord struct {
	Word         string   `json:"word"`
	StartSeconds *float64 `json:"start_seconds,omitempty"`
	EndSeconds   *float64 `json:"end_seconds,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
}

// TranscriptSegment is a contiguous piece of the transcript with timing.
type TranscriptSegment struct {
	SegmentID    int              `json:"segment_id,omitempty"`
	StartSeconds *float64         `json:"start_seconds,omitempty"`
	EndSeconds   *float64         `json:"end_seconds,omitempty"`
	Confidence   *float64         `json:"confidence,omitempty"`
	Text         string           `json:"text"`
	Words        []TranscriptWord `json:"words,omitempty"`
	RefinedText  string           `json:"refined_text,omitempty"`
}

// SpeakerSummary describes the outcome of speaker identification.
type SpeakerSummary struct {
	TotalSpeakers int      `json:"total_speakers"`
	Confidence    string   `json:"confidence"`
	Speakers      []string `json:"speakers"`
	Notes         string   `json:"notes,omitempty"`
}

// Snapshot is the canonical view of one transcription job. JobKey is the
// locally generated identifier assigned before the backend issues a job id;
// once JobID is known the persisted record is re-keyed to it.
type Snapshot struct {
	JobKey             string              `json:"jobKey,omitempty"`
	JobID              string              `json:"jobId,omitempty"`
	Status             Stage               `json:"status,omitempty"`
	Progress           *int                `json:"progress,omitempty"`
	Transcript         string              `json:"transcript,omitempty"`
	TranscriptURI      string              `json:"transcriptUri,omitempty"`
	TranscriptSegments []TranscriptSegment `json:"transcriptSegments,omitempty"`
	SpeakerTranscript  string              `json:"speakerIdentifiedTranscript,omitempty"`
	SpeakerSummary     *SpeakerSummary     `json:"speakerIdentificationSummary,omitempty"`
	RefinedTranscript  string              `json:"refinedTranscript,omitempty"`
	Error              string              `json:"error,omitempty"`
	Message            string              `json:"message,omitempty"`
	CreatedAt          string              `json:"createdAt,omitempty"`
	StartedAt          string              `json:"startedAt,omitempty"`
	CompletedAt        string              `json:"completedAt,omitempty"`
	GCSURI             string              `json:"gcsUri,omitempty"`
	FileSizeBytes      int64               `json:"fileSizeBytes,omitempty"`
	FileName           string              `json:"fileName,omitempty"`
}

// Update carries the fields one status response or push message may set.
// Empty or nil fields never overwrite previously known values; merge is
// per-field last-known-good, not per-message.
type Update struct {
	JobID              string
	Status             Stage
	Progress           *int
	Transcript         string
	TranscriptURI      string
	TranscriptSegments []TranscriptSegment
	SpeakerTranscript  string
	SpeakerSummary     *SpeakerSummary
	RefinedTranscript  string
	Error              string
	Message            string
	CreatedAt          string
	StartedAt          string
	CompletedAt        string
	GCSURI             string
}

// Merge applies u onto s. It returns true when the status changed, so the
// caller can restart stage timers. Updates arriving after a terminal stage
// are discarded.
func (s *Snapshot) Merge(u Update) (stageChanged bool) {
	if s.Status.Terminal() {
		return false
	}

	if u.JobID != "" {
		s.JobID = u.JobID
	}
	if u.Status != "" && u.Status.Known() && u.Status != s.Status {
		s.Status = u.Status
		stageChanged = true
	}
	if u.Progress != nil {
		s.Progress = u.Progress
	}
	if u.Transcript != "" {
		s.Transcript = u.Transcript
	}
	if u.TranscriptURI != "" {
		s.TranscriptURI = u.TranscriptURI
	}
	if len(u.TranscriptSegments) > 0 {
		s.TranscriptSegments = u.TranscriptSegments
	}
	if u.SpeakerTranscript != "" {
		s.SpeakerTranscript = u.SpeakerTranscript
	}
	if u.SpeakerSummary != nil {
		s.SpeakerSummary = u.SpeakerSummary
	}
	if u.RefinedTranscript != "" {
		s.RefinedTranscript = u.RefinedTranscript
	}
	if u.Error != "" {
		s.Error = u.Error
	}
	if u.Message != "" {
		s.Message = u.Message
	}
	if u.CreatedAt != "" {
		s.CreatedAt = u.CreatedAt
	}
	if u.StartedAt != "" {
		s.StartedAt = u.StartedAt
	}
	if u.CompletedAt != "" {
		s.CompletedAt = u.CompletedAt
	}
	if u.GCSURI != "" {
		s.GCSURI = u.GCSURI
	}
	return stageChanged
}
