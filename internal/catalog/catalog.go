package catalog

import (
	"context"
	"errors"
	"time"
)

// Granularity declares how a lesson type gates access and reports
// completion to the external system
type Granularity int

const (
	// GranularityNone no gating, no sync unit
	GranularityNone Granularity = iota
	// GranularityVideo sequential per video inside a lesson
	GranularityVideo
	// GranularityLesson aggregate over the whole lesson
	GranularityLesson
)

// ParseGranularity map the stored tag to a Granularity value
func ParseGranularity(tag string) Granularity {
	switch tag {
	case "video":
		return GranularityVideo
	case "lesson":
		return GranularityLesson
	}
	return GranularityNone
}

func (g Granularity) String() string {
	switch g {
	case GranularityVideo:
		return "video"
	case GranularityLesson:
		return "lesson"
	}
	return "none"
}

// ErrLessonNotFound referenced lesson id does not exist
var ErrLessonNotFound = errors.New("No such lesson")

// ErrVideoNotFound referenced video id does not exist
var ErrVideoNotFound = errors.New("No such video")

// LessonTypeModel a course track, carries the declared gating/sync behavior
// instead of branching on the type name
type LessonTypeModel struct {
	ID      int         `json:"id"`
	Name    string      `json:"name"`
	Gating  Granularity `json:"gating"`
	SyncAs  Granularity `json:"sync_as"` // GranularityNone disables external sync
}

// LessonModel an ordered unit of videos within a lesson type.
// Order 0 marks unordered content excluded from gating
type LessonModel struct {
	ID        int              `json:"id"`
	TypeID    int              `json:"-"`
	Type      *LessonTypeModel `json:"type"`
	Name      string           `json:"name"`
	Order     int              `json:"order"`
	Threshold float64          `json:"threshold"` // completion ratio in [0,1] required to count as done
	Videos    []*VideoModel    `json:"videos"`
}

// Duration sum of the lesson's video durations, derived
func (l *LessonModel) Duration() time.Duration {
	var total time.Duration
	for _, v := range l.Videos {
		total += v.Duration
	}
	return total
}

// VideoModel a single lesson video plus its rotating transcode-cache entry
type VideoModel struct {
	ID             int           `json:"id"`
	LessonID       int           `json:"-"`
	Lesson         *LessonModel  `json:"-"`
	Name           string        `json:"name"`
	FileName       string        `json:"-"`
	Duration       time.Duration `json:"duration"`
	HLSToken       string        `json:"-"`
	HLSRefreshedAt *time.Time    `json:"-"`
}

// CatalogRepository read-only catalog access, the admin surface owns the rows.
// UpdateVideoCache is the single exception, backing the daily cache rotation
type CatalogRepository interface {
	GetVideoByID(ctx context.Context, id int) (*VideoModel, error)
	GetLessonByID(ctx context.Context, id int) (*LessonModel, error)
	GetLessonsByType(ctx context.Context, typeID int) ([]*LessonModel, error)
	UpdateVideoCache(ctx context.Context, videoID int, token string, refreshedAt time.Time) error
}
