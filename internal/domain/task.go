package domain

// GenerationStatus enumerates the lifecycle states of one comic generation run.
type GenerationStatus string

const (
	StatusIdle                 GenerationStatus = "idle"
	StatusExtractingBaseFrames GenerationStatus = "extracting_base_frames"
	StatusGeneratingComic      GenerationStatus = "generating_comic"
	StatusCompleted            GenerationStatus = "completed"
	StatusFailed               GenerationStatus = "failed"
	StatusCancelled            GenerationStatus = "cancelled"
)

// Terminal reports whether no further transitions can leave the status
// without an explicit reset.
func (s GenerationStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether a run is in flight.
func (s GenerationStatus) Active() bool {
	return s == StatusExtractingBaseFrames || s == StatusGeneratingComic
}

// GenerationConfig holds the immutable parameters of one generation attempt.
// It is set when the run is created and never mutated afterwards.
type GenerationConfig struct {
	StoryStyle         string
	TargetFrames       int
	FrameInterval      float64
	SignificanceWeight float64
	QualityWeight      float64
	StylePrompt        string
	ImageSize          string
	MaxConcurrent      int
}

// DefaultGenerationConfig returns the parameters used when the caller does not
// override them.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		StoryStyle:         "adventure",
		TargetFrames:       8,
		FrameInterval:      2.0,
		SignificanceWeight: 0.7,
		QualityWeight:      0.3,
		ImageSize:          "1024x1024",
		MaxConcurrent:      3,
	}
}

// GenerationTask identifies one end-to-end comic generation attempt against
// the remote backend. TaskID is the backend-assigned identifier correlating
// every request of the run; VideoPath is the backend-resident path of the
// already uploaded source video.
type GenerationTask struct {
	TaskID    string
	VideoPath string
	Config    GenerationConfig
}

// Validate checks the fields required before a run can start.
func (t GenerationTask) Validate() error {
	if t.TaskID == "" || t.VideoPath == "" {
		return ErrInvalidTask
	}
	return nil
}
