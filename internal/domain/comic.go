package domain

import (
	"encoding/json"
	"fmt"
)

// ComicPanel is one page of a generated comic.
type ComicPanel struct {
	PanelNumber int    `json:"panel_number"`
	ImageURL    string `json:"image_url"`
	Narration   string `json:"narration,omitempty"`
}

// ComicResult is the final artifact of a successful generation run. It is a
// plain value: immutable once built and safe to copy.
type ComicResult struct {
	ComicID            string       `json:"comic_id"`
	DeviceID           string       `json:"device_id"`
	Title              string       `json:"title"`
	Summary            string       `json:"summary"`
	OverallTheme       string       `json:"overall_theme,omitempty"`
	OriginalVideoTitle string       `json:"original_video_title"`
	CreationDate       string       `json:"creation_date"`
	PanelCount         int          `json:"panel_count"`
	Panels             []ComicPanel `json:"panels"`
	FinalQuestions     []string     `json:"final_questions,omitempty"`
}

// DisplaySummary prefers the backend summary and falls back to the overall
// theme when the summary is empty. Both fields stay available to callers.
func (r ComicResult) DisplaySummary() string {
	if r.Summary != "" {
		return r.Summary
	}
	return r.OverallTheme
}

// EncodePayload serializes the result for history storage.
func (r ComicResult) EncodePayload() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("domain: encode comic result: %w", err)
	}
	return data, nil
}

// DecodeComicResult restores a result from its stored payload.
func DecodeComicResult(data []byte) (*ComicResult, error) {
	var result ComicResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("domain: decode comic result: %w", err)
	}
	return &result, nil
}
