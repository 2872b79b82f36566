package api

import (
	"time"

	"github.com/glefebvre/vodharvest/internal/database"
	"github.com/glefebvre/vodharvest/internal/models"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// PaginatedResponse wraps paginated results with metadata
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
	TotalPages int         `json:"total_pages"`
}

// RunResponse represents a harvest run
type RunResponse struct {
	RunID        string           `json:"run_id"`
	Module       string           `json:"module"`
	Search       *string          `json:"search,omitempty"`
	Status       models.RunStatus `json:"status"`
	Shows        int              `json:"shows"`
	Episodes     int              `json:"episodes"`
	Streams      int              `json:"streams"`
	Downloads    map[string]int64 `json:"downloads"`
	StartedAt    string           `json:"started_at"`
	CompletedAt  *string          `json:"completed_at,omitempty"`
	ErrorMessage *string          `json:"error_message,omitempty"`
}

// ShowResponse represents a show without its episodes
type ShowResponse struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Category     string      `json:"category"`
	CategoryRaw  *string     `json:"category_raw,omitempty"`
	Img          *string     `json:"img,omitempty"`
	Link         *string     `json:"link,omitempty"`
	Kind         models.Kind `json:"kind"`
	EpisodeCount int         `json:"episode_count"`
}

// ShowDetailResponse is a show with its episodes grouped by season
type ShowDetailResponse struct {
	ShowResponse
	Seasons []SeasonResponse `json:"seasons"`
}

// SeasonResponse lists the episodes of one season
type SeasonResponse struct {
	Season   int               `json:"season"`
	Episodes []EpisodeResponse `json:"episodes"`
}

// EpisodeResponse represents one episode
type EpisodeResponse struct {
	ID      string  `json:"id"`
	Name    *string `json:"name,omitempty"`
	Date    *string `json:"date,omitempty"`
	Link    *string `json:"link,omitempty"`
	Episode *int    `json:"episode,omitempty"`
	Stream  *string `json:"stream,omitempty"`
}

// CategoriesResponse lists per-category counts
type CategoriesResponse struct {
	Categories []database.CategorySummary `json:"categories"`
}

func toRunResponse(run *models.HarvestRun, downloads map[string]int64) RunResponse {
	resp := RunResponse{
		RunID:        run.RunID,
		Module:       run.Module,
		Search:       run.Search,
		Status:       run.Status,
		Shows:        run.ShowCount,
		Episodes:     run.EpisodeCount,
		Streams:      run.StreamCount,
		Downloads:    downloads,
		StartedAt:    run.StartedAt.UTC().Format(time.RFC3339),
		ErrorMessage: run.ErrorMessage,
	}
	if run.CompletedAt != nil {
		completed := run.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &completed
	}
	return resp
}

func toShowResponse(show models.ShowRecord) ShowResponse {
	return ShowResponse{
		ID:           show.ShowID,
		Name:         show.Name,
		Category:     show.Category,
		CategoryRaw:  show.CategoryRaw,
		Img:          show.Img,
		Link:         show.Link,
		Kind:         show.Kind,
		EpisodeCount: show.EpisodeCount,
	}
}

// toShowDetailResponse groups episodes by season; episodes arrive in season order
func toShowDetailResponse(show models.ShowRecord) ShowDetailResponse {
	resp := ShowDetailResponse{
		ShowResponse: toShowResponse(show),
		Seasons:      []SeasonResponse{},
	}

	for _, ep := range show.Episodes {
		n := len(resp.Seasons)
		if n == 0 || resp.Seasons[n-1].Season != ep.Season {
			resp.Seasons = append(resp.Seasons, SeasonResponse{Season: ep.Season})
			n++
		}
		resp.Seasons[n-1].Episodes = append(resp.Seasons[n-1].Episodes, EpisodeResponse{
			ID:      ep.EpisodeID,
			Name:    ep.Name,
			Date:    ep.Date,
			Link:    ep.Link,
			Episode: ep.Episode,
			Stream:  ep.StreamURL,
		})
	}
	return resp
}
