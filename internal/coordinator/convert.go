package coordinator

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"comicd/internal/domain"
	"comicd/internal/gateway"
)

// convertResult maps a backend result payload into a ComicResult. Page order
// is preserved via page_index; asset paths are normalized and, when relative,
// prefixed with assetBaseURL.
func convertResult(resp *gateway.ComicResultResponse, assetBaseURL, deviceID string) (*domain.ComicResult, error) {
	if resp == nil || !resp.Success || resp.Results == nil {
		return nil, fmt.Errorf("coordinator: %w: result payload missing", domain.ErrEmptyResult)
	}

	var outcome *gateway.ComicOutcome
	for i := range resp.Results.SuccessfulComics {
		candidate := &resp.Results.SuccessfulComics[i]
		if candidate.Success && candidate.ComicData != nil {
			outcome = candidate
			break
		}
	}
	if outcome == nil {
		return nil, fmt.Errorf("coordinator: %w: no successful comics", domain.ErrEmptyResult)
	}

	data := outcome.ComicData
	pages := make([]gateway.ComicPage, len(data.Pages))
	copy(pages, data.Pages)
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].PageIndex < pages[j].PageIndex
	})

	panels := make([]domain.ComicPanel, 0, len(pages))
	for _, page := range pages {
		panels = append(panels, domain.ComicPanel{
			PanelNumber: page.PageIndex + 1,
			ImageURL:    normalizeAssetPath(page.StyledFramePath, assetBaseURL),
			Narration:   page.StoryText,
		})
	}

	title := strings.TrimSpace(data.StoryInfo.Title)
	if title == "" {
		title = displayTitle(outcome.VideoName)
	}

	creationDate := strings.TrimSpace(data.CreatedAt)
	if creationDate == "" {
		creationDate = time.Now().UTC().Format(time.RFC3339)
	}

	comicID := strings.TrimSpace(data.ComicID)
	if comicID == "" {
		comicID = resp.TaskID
	}

	return &domain.ComicResult{
		ComicID:            comicID,
		DeviceID:           deviceID,
		Title:              title,
		Summary:            strings.TrimSpace(data.StoryInfo.Summary),
		OverallTheme:       strings.TrimSpace(data.StoryInfo.OverallTheme),
		OriginalVideoTitle: outcome.VideoName,
		CreationDate:       creationDate,
		PanelCount:         len(panels),
		Panels:             panels,
		FinalQuestions:     data.InteractiveQuestions,
	}, nil
}

// normalizeAssetPath converts backend file paths into fetchable URLs:
// backslashes become forward slashes and relative paths are anchored at the
// backend base URL.
func normalizeAssetPath(p, baseURL string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(p, "/")
}

// displayTitle derives a human-friendly title from a raw video file name.
func displayTitle(videoName string) string {
	name := path.Base(strings.ReplaceAll(videoName, "\\", "/"))
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "Untitled Comic"
	}
	return cases.Title(language.English).String(name)
}
