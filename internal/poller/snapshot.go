package poller

// Raw backend status values.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Backend processing stages, in pipeline order.
const (
	StageUploading          = "uploading"
	StageFrameExtraction    = "frame_extraction"
	StageBaseFramesComplete = "base_frames_complete"
	StageStoryGeneration    = "story_generation"
	StageImageGeneration    = "image_generation"
)

// earlyExtractionThreshold is the backend progress percentage from which an
// opportunistic base frame fetch is worth attempting.
const earlyExtractionThreshold = 50

// Snapshot is one normalized reading of remote task state. It is produced on
// every successful status query and consumed immediately; it is never stored.
type Snapshot struct {
	// Status is the raw backend status string.
	Status string
	// Progress is the backend percentage, clamped to the running maximum of
	// the current polling run so it never regresses.
	Progress int
	// Message is the backend-supplied human-readable text.
	Message string
	// Stage is the backend processing phase, empty when not reported.
	Stage string
	// ShouldContinue is false exactly when Status is terminal.
	ShouldContinue bool
	// ShouldExtractFrames is true at most once per polling run, the first
	// time the backend reports a stage where base frames exist.
	ShouldExtractFrames bool
	// ShouldTryEarlyExtraction hints that an opportunistic extraction
	// attempt may pay off before the task completes.
	ShouldTryEarlyExtraction bool
}

// IsTerminal reports whether a raw backend status admits no further progress.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// framesAvailable reports whether the given stage implies base frames have
// been written and can be fetched.
func framesAvailable(stage string) bool {
	switch stage {
	case StageBaseFramesComplete, StageStoryGeneration, StageImageGeneration:
		return true
	}
	return false
}
