package api

import "github.com/mwinckel/scribe/internal/job"

// UploadedFileData is the response of the multipart upload endpoint.
type UploadedFileData struct {
	GCSURI           string `json:"gcs_uri"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename"`
	Size             int64  `json:"size"`
	ContentType      string `json:"content_type"`
}

// SignedURLOption describes the single-PUT upload path.
type SignedURLOption struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
}

// ResumableUploadOption describes the chunked resumable upload path.
type ResumableUploadOption struct {
	ResumableURL string            `json:"resumable_url"`
	Headers      map[string]string `json:"headers"`
	ChunkSize    int64             `json:"chunk_size"`
}

// UploadOptions lists the upload mechanisms the backend offers.
type UploadOptions struct {
	SignedURL       *SignedURLOption       `json:"signed_url,omitempty"`
	ResumableUpload *ResumableUploadOption `json:"resumable_upload,omitempty"`
}

// UploadOptionsResponse is the signed-url endpoint response.
type UploadOptionsResponse struct {
	RecommendedMethod string        `json:"recommended_method"`
	GCSURI            string        `json:"gcs_uri"`
	Filename          string        `json:"filename"`
	UploadOptions     UploadOptions `json:"upload_options"`
}

// TranscriptionRequest starts a transcription job.
type TranscriptionRequest struct {
	GCSURI                      string `json:"gcs_uri"`
	LanguageCode                string `json:"language_code,omitempty"`
	RecognizerID                string `json:"recognizer_id,omitempty"`
	ExtractAudio                bool   `json:"extract_audio"`
	EnablePunctuation           bool   `json:"enable_punctuation"`
	EnableDiarization           bool   `json:"enable_diarization"`
	EnableSpeakerIdentification bool   `json:"enable_speaker_identification"`
	MinSpeakerCount             int    `json:"min_speaker_count,omitempty"`
	MaxSpeakerCount             int    `json:"max_speaker_count,omitempty"`
}

// TranscriptionResponse acknowledges a started job.
type TranscriptionResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StatusResponse is the full job status object.
type StatusResponse struct {
	JobID              string                  `json:"job_id"`
	Status             string                  `json:"status"`
	Progress           *int                    `json:"progress,omitempty"`
	CreatedAt          string                  `json:"created_at,omitempty"`
	StartedAt          string                  `json:"started_at,omitempty"`
	CompletedAt        string                  `json:"completed_at,omitempty"`
	GCSURI             string                  `json:"gcs_uri,omitempty"`
	Transcript         string                  `json:"transcript,omitempty"`
	TranscriptURI      string                  `json:"transcript_uri,omitempty"`
	TranscriptSegments []job.TranscriptSegment `json:"transcript_segments,omitempty"`
	SpeakerTranscript  string                  `json:"speaker_identified_transcript,omitempty"`
	SpeakerSummary     *job.SpeakerSummary     `json:"speaker_identification_summary,omitempty"`
	RefinedTranscript  string                  `json:"refined_transcript,omitempty"`
	Error              string                  `json:"error,omitempty"`
}

// Update converts the wire status into a mergeable job update.
func (r *StatusResponse) Update() job.Update {
	return job.Update{
		JobID:              r.JobID,
		Status:             job.Stage(r.Status),
		Progress:           r.Progress,
		Transcript:         r.Transcript,
		TranscriptURI:      r.TranscriptURI,
		TranscriptSegments: r.TranscriptSegments,
		SpeakerTranscript:  r.SpeakerTranscript,
		SpeakerSummary:     r.SpeakerSummary,
		RefinedTranscript:  r.RefinedTranscript,
		Error:              r.Error,
		CreatedAt:          r.CreatedAt,
		StartedAt:          r.StartedAt,
		CompletedAt:        r.CompletedAt,
		GCSURI:             r.GCSURI,
	}
}

// RecognizerRequest creates or fetches a speech recognizer.
type RecognizerRequest struct {
	RecognizerID               string   `json:"recognizer_id,omitempty"`
	LanguageCodes              []string `json:"language_codes,omitempty"`
	Model                      string   `json:"model,omitempty"`
	EnableAutomaticPunctuation bool     `json:"enable_automatic_punctuation"`
}

// RecognizerResponse acknowledges recognizer creation.
type RecognizerResponse struct {
	RecognizerID string `json:"recognizer_id"`
	Created      bool   `json:"created"`
	Message      string `json:"message"`
}
