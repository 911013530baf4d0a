package domain

import "time"

// HistoryRecord is the persisted wrapper around a completed ComicResult,
// keyed by the comic ID. Payload is the serialized ComicResult; the remaining
// fields are denormalized for list views.
type HistoryRecord struct {
	ID                 string
	Title              string
	OriginalVideoTitle string
	CreationDate       time.Time
	PanelCount         int
	Payload            []byte
	DeviceID           string
	StoryStyle         string
	ThumbnailRef       string
}
