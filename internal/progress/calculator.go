package progress

import (
	"context"
	"time"

	"github.com/yvod/yvod/internal/catalog"
)

// Calculator derives completion ratios from punch rows and the catalog.
// Ratios are clamped to [0,1], over-reported positions never inflate progress
type Calculator struct {
	Punches PunchRepository
}

func NewCalculator(Punches PunchRepository) *Calculator {
	return &Calculator{Punches: Punches}
}

// VideoProgress watched fraction of a single video, 0 without a record
func (pc *Calculator) VideoProgress(ctx context.Context, userID string, video *catalog.VideoModel) (float64, error) {
	punch, err := pc.Punches.GetByUserVideo(ctx, userID, video.ID)
	if err != nil {
		return 0, err
	}
	return videoRatio(punch, video), nil
}

// VideoComplete progress reached the threshold, lesson threshold unless overridden
func (pc *Calculator) VideoComplete(ctx context.Context, userID string, video *catalog.VideoModel, threshold ...float64) (bool, error) {
	ratio, err := pc.VideoProgress(ctx, userID, video)
	if err != nil {
		return false, err
	}
	limit := lessonThreshold(video.Lesson)
	if len(threshold) > 0 {
		limit = threshold[0]
	}
	return ratio >= limit, nil
}

// LessonWatched total clamped watch time over the lesson's videos
func (pc *Calculator) LessonWatched(ctx context.Context, userID string, lesson *catalog.LessonModel) (time.Duration, error) {
	punches, err := pc.Punches.GetByUserLesson(ctx, userID, lesson.ID)
	if err != nil {
		return 0, err
	}
	byVideo := make(map[int]*PunchModel, len(punches))
	for _, p := range punches {
		byVideo[p.VideoID] = p
	}

	var watched time.Duration
	for _, v := range lesson.Videos {
		punch, ok := byVideo[v.ID]
		if !ok {
			continue
		}
		if punch.PlayTime > v.Duration {
			watched += v.Duration
		} else {
			watched += punch.PlayTime
		}
	}
	return watched, nil
}

// LessonProgress watched fraction of the whole lesson.
// A zero duration lesson counts as vacuously complete instead of dividing by zero
func (pc *Calculator) LessonProgress(ctx context.Context, userID string, lesson *catalog.LessonModel) (float64, error) {
	total := lesson.Duration()
	if total <= 0 {
		return 1, nil
	}
	watched, err := pc.LessonWatched(ctx, userID, lesson)
	if err != nil {
		return 0, err
	}
	ratio := watched.Seconds() / total.Seconds()
	if ratio > 1 {
		ratio = 1
	}
	return ratio, nil
}

// LessonComplete progress reached the threshold, lesson threshold unless overridden
func (pc *Calculator) LessonComplete(ctx context.Context, userID string, lesson *catalog.LessonModel, threshold ...float64) (bool, error) {
	ratio, err := pc.LessonProgress(ctx, userID, lesson)
	if err != nil {
		return false, err
	}
	limit := lessonThreshold(lesson)
	if len(threshold) > 0 {
		limit = threshold[0]
	}
	return ratio >= limit, nil
}

func videoRatio(punch *PunchModel, video *catalog.VideoModel) float64 {
	if video.Duration <= 0 {
		return 1
	}
	if punch == nil {
		return 0
	}
	ratio := punch.PlayTime.Seconds() / video.Duration.Seconds()
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

func lessonThreshold(lesson *catalog.LessonModel) float64 {
	if lesson == nil {
		return 0
	}
	return lesson.Threshold
}
