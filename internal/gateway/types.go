package gateway

// Response payloads of the comic backend. All keys are snake_case JSON; the
// backend reports logical failures inside 2xx bodies via the success flag, so
// callers must check it in addition to the transport error.

// BaseFrameExtraction is the response of POST /api/extract/base-frames.
type BaseFrameExtraction struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	TaskID  string            `json:"task_id"`
	Results []VideoFrameBatch `json:"results"`
}

// VideoFrameBatch lists the base frames extracted from one source video.
type VideoFrameBatch struct {
	VideoName       string   `json:"video_name"`
	BaseFramesCount int      `json:"base_frames_count"`
	BaseFramesPaths []string `json:"base_frames_paths"`
	OutputDir       string   `json:"output_dir"`
}

// FramePaths flattens the extracted frame paths across all batches,
// preserving batch order.
func (e BaseFrameExtraction) FramePaths() []string {
	var paths []string
	for _, batch := range e.Results {
		paths = append(paths, batch.BaseFramesPaths...)
	}
	return paths
}

// StartAck is the response of POST /api/process/complete-comic. Success means
// the backend accepted the task, not that generation finished.
type StartAck struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Stage    string `json:"stage"`
}

// TaskStatus is the raw status payload of the task status endpoint.
type TaskStatus struct {
	Success   bool   `json:"success"`
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Progress  int    `json:"progress"`
	Stage     string `json:"stage"`
	CreatedAt string `json:"created_at"`
}

// Ack is the response of the task cancel endpoint.
type Ack struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// ComicResultResponse is the response of GET /api/comic/result/{task_id}.
type ComicResultResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	TaskID  string       `json:"task_id"`
	Results *BatchResult `json:"results"`
}

// BatchResult aggregates per-video outcomes of one task.
type BatchResult struct {
	SuccessfulComics []ComicOutcome `json:"successful_comics"`
	TotalProcessed   int            `json:"total_processed"`
	SuccessCount     int            `json:"success_count"`
	FailureCount     int            `json:"failure_count"`
}

// ComicOutcome is the outcome for a single source video.
type ComicOutcome struct {
	VideoName string     `json:"video_name"`
	Success   bool       `json:"success"`
	ComicData *ComicData `json:"comic_data"`
}

// ComicData is the generated comic as reported by the backend.
type ComicData struct {
	ComicID              string      `json:"comic_id"`
	CreatedAt            string      `json:"created_at"`
	StoryInfo            StoryInfo   `json:"story_info"`
	Pages                []ComicPage `json:"pages"`
	InteractiveQuestions []string    `json:"interactive_questions"`
}

// StoryInfo carries the narrative metadata of a generated comic. The backend
// populates summary and overall_theme inconsistently, so both are kept.
type StoryInfo struct {
	Title        string `json:"title"`
	Summary      string `json:"summary"`
	OverallTheme string `json:"overall_theme"`
	StoryStyle   string `json:"story_style"`
}

// ComicPage is one generated page: story text plus the styled frame rendered
// for it. Paths may be backend-relative and use backslashes.
type ComicPage struct {
	PageIndex       int    `json:"page_index"`
	StoryText       string `json:"story_text"`
	StyledFramePath string `json:"styled_frame_path"`
}
