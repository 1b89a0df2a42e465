package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yvod/yvod/internal/catalog"
)

func newLesson(threshold float64, durations ...time.Duration) *catalog.LessonModel {
	lessonType := &catalog.LessonTypeModel{ID: 1, Name: "safety"}
	lesson := &catalog.LessonModel{
		ID:        1,
		TypeID:    lessonType.ID,
		Type:      lessonType,
		Name:      "Safety Basics",
		Threshold: threshold,
	}
	for i, d := range durations {
		video := &catalog.VideoModel{
			ID:       10 + i,
			LessonID: lesson.ID,
			Lesson:   lesson,
			Duration: d,
		}
		lesson.Videos = append(lesson.Videos, video)
	}
	return lesson
}

func newCalcFixture(lesson *catalog.LessonModel) (*Calculator, *MemoryPunchRepository) {
	punches := NewMemoryPunchRepository(false)
	for _, v := range lesson.Videos {
		punches.RegisterVideo(v.ID, lesson.ID)
	}
	return NewCalculator(punches), punches
}

func TestVideoProgress_NoRecord(t *testing.T) {
	lesson := newLesson(0.8, 60*time.Second)
	calc, _ := newCalcFixture(lesson)

	ratio, err := calc.VideoProgress(context.Background(), "u-1", lesson.Videos[0])
	require.NoError(t, err)
	assert.Equal(t, 0.0, ratio)
}

func TestVideoProgress_Clamped(t *testing.T) {
	lesson := newLesson(0.8, 60*time.Second)
	calc, punches := newCalcFixture(lesson)
	ctx := context.Background()

	_, err := punches.UpsertWatchTime(ctx, "u-1", lesson.Videos[0].ID, 600*time.Second)
	require.NoError(t, err)
	ratio, err := calc.VideoProgress(ctx, "u-1", lesson.Videos[0])
	require.NoError(t, err)
	assert.Equal(t, 1.0, ratio)
}

func TestVideoProgress_ZeroDuration(t *testing.T) {
	lesson := newLesson(0.8, 0)
	calc, _ := newCalcFixture(lesson)

	ratio, err := calc.VideoProgress(context.Background(), "u-1", lesson.Videos[0])
	require.NoError(t, err)
	assert.Equal(t, 1.0, ratio, "zero duration is vacuously complete")
}

func TestVideoComplete_ThresholdBoundary(t *testing.T) {
	lesson := newLesson(0.8, 60*time.Second)
	calc, punches := newCalcFixture(lesson)
	ctx := context.Background()
	video := lesson.Videos[0]

	_, err := punches.UpsertWatchTime(ctx, "u-1", video.ID, 47*time.Second)
	require.NoError(t, err)
	done, err := calc.VideoComplete(ctx, "u-1", video)
	require.NoError(t, err)
	assert.False(t, done)

	// 48s of 60s is exactly the 0.8 threshold
	_, err = punches.UpsertWatchTime(ctx, "u-1", video.ID, 48*time.Second)
	require.NoError(t, err)
	done, err = calc.VideoComplete(ctx, "u-1", video)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestVideoComplete_ThresholdOverride(t *testing.T) {
	lesson := newLesson(0.8, 60*time.Second)
	calc, punches := newCalcFixture(lesson)
	ctx := context.Background()
	video := lesson.Videos[0]

	_, err := punches.UpsertWatchTime(ctx, "u-1", video.ID, 30*time.Second)
	require.NoError(t, err)
	done, err := calc.VideoComplete(ctx, "u-1", video, 0.5)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestLessonWatched_ClampsPerVideo(t *testing.T) {
	lesson := newLesson(0.8, 60*time.Second, 30*time.Second)
	calc, punches := newCalcFixture(lesson)
	ctx := context.Background()

	// the first video is over-reported, only its duration counts
	_, err := punches.UpsertWatchTime(ctx, "u-1", lesson.Videos[0].ID, 600*time.Second)
	require.NoError(t, err)
	_, err = punches.UpsertWatchTime(ctx, "u-1", lesson.Videos[1].ID, 10*time.Second)
	require.NoError(t, err)

	watched, err := calc.LessonWatched(ctx, "u-1", lesson)
	require.NoError(t, err)
	assert.Equal(t, 70*time.Second, watched)

	ratio, err := calc.LessonProgress(ctx, "u-1", lesson)
	require.NoError(t, err)
	assert.InDelta(t, 70.0/90.0, ratio, 1e-9)
}

func TestLessonProgress_ZeroDurationLesson(t *testing.T) {
	lesson := newLesson(0.8)
	calc, _ := newCalcFixture(lesson)

	ratio, err := calc.LessonProgress(context.Background(), "u-1", lesson)
	require.NoError(t, err)
	assert.Equal(t, 1.0, ratio)

	done, err := calc.LessonComplete(context.Background(), "u-1", lesson)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestUpsertWatchTime_LastWriteWins(t *testing.T) {
	punches := NewMemoryPunchRepository(false)
	punches.RegisterVideo(10, 1)
	ctx := context.Background()

	_, err := punches.UpsertWatchTime(ctx, "u-1", 10, 50*time.Second)
	require.NoError(t, err)
	punch, err := punches.UpsertWatchTime(ctx, "u-1", 10, 20*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, punch.PlayTime, "plain overwrite may move backwards")
}

func TestUpsertWatchTime_HighWaterMark(t *testing.T) {
	punches := NewMemoryPunchRepository(true)
	punches.RegisterVideo(10, 1)
	ctx := context.Background()

	_, err := punches.UpsertWatchTime(ctx, "u-1", 10, 50*time.Second)
	require.NoError(t, err)
	punch, err := punches.UpsertWatchTime(ctx, "u-1", 10, 20*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Second, punch.PlayTime, "stale reports must not regress progress")
}

func TestMarkSynchronized_Idempotent(t *testing.T) {
	punches := NewMemoryPunchRepository(false)
	punches.RegisterVideo(10, 1)
	ctx := context.Background()

	_, err := punches.UpsertWatchTime(ctx, "u-1", 10, 50*time.Second)
	require.NoError(t, err)
	require.NoError(t, punches.MarkSynchronized(ctx, "u-1", []int{10}))
	require.NoError(t, punches.MarkSynchronized(ctx, "u-1", []int{10}))

	punch, err := punches.GetByUserVideo(ctx, "u-1", 10)
	require.NoError(t, err)
	assert.True(t, punch.Synced)
}
