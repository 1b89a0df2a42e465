package ysync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/yvod/yvod/internal/catalog"
	"github.com/yvod/yvod/internal/progress"
	"github.com/yvod/yvod/internal/user"
)

const testSecret = "sync-secret"

func newTestCatalog(syncAs catalog.Granularity) (*catalog.LessonModel, *catalog.VideoModel) {
	lessonType := &catalog.LessonTypeModel{ID: 1, Name: "safety", SyncAs: syncAs}
	video := &catalog.VideoModel{ID: 11, Name: "safety-01", Duration: 60 * time.Second}
	lesson := &catalog.LessonModel{
		ID:        1,
		TypeID:    lessonType.ID,
		Type:      lessonType,
		Name:      "Safety Basics",
		Threshold: 0.8,
		Videos:    []*catalog.VideoModel{video},
	}
	video.LessonID = lesson.ID
	video.Lesson = lesson
	return lesson, video
}

func newTestBridge(baseURL string, punches progress.PunchRepository) *Bridge {
	return NewBridge(baseURL, testSecret, 5*time.Minute, 2*time.Second,
		punches, progress.NewCalculator(punches))
}

func TestSyncRequired_ThresholdAndFlag(t *testing.T) {
	_, video := newTestCatalog(catalog.GranularityVideo)
	punches := progress.NewMemoryPunchRepository(false)
	punches.RegisterVideo(video.ID, video.LessonID)
	bridge := newTestBridge("http://y-system.local", punches)
	ctx := context.Background()

	punch, err := punches.UpsertWatchTime(ctx, "u-1", video.ID, 30*time.Second)
	assert.NoError(t, err)
	required, err := bridge.SyncRequired(ctx, "u-1", video, punch)
	assert.NoError(t, err)
	assert.False(t, required, "below threshold must not sync")

	punch, err = punches.UpsertWatchTime(ctx, "u-1", video.ID, 50*time.Second)
	assert.NoError(t, err)
	required, err = bridge.SyncRequired(ctx, "u-1", video, punch)
	assert.NoError(t, err)
	assert.True(t, required)

	err = punches.MarkSynchronized(ctx, "u-1", []int{video.ID})
	assert.NoError(t, err)
	punch, err = punches.GetByUserVideo(ctx, "u-1", video.ID)
	assert.NoError(t, err)
	required, err = bridge.SyncRequired(ctx, "u-1", video, punch)
	assert.NoError(t, err)
	assert.False(t, required, "acknowledged unit must not sync again")
}

func TestSyncRequired_Disabled(t *testing.T) {
	_, video := newTestCatalog(catalog.GranularityVideo)
	punches := progress.NewMemoryPunchRepository(false)
	punches.RegisterVideo(video.ID, video.LessonID)
	bridge := newTestBridge("", punches)

	punch, err := punches.UpsertWatchTime(context.Background(), "u-1", video.ID, 60*time.Second)
	assert.NoError(t, err)
	required, err := bridge.SyncRequired(context.Background(), "u-1", video, punch)
	assert.NoError(t, err)
	assert.False(t, required)
}

func TestTrySynchronize_Acknowledged(t *testing.T) {
	_, video := newTestCatalog(catalog.GranularityVideo)
	punches := progress.NewMemoryPunchRepository(false)
	punches.RegisterVideo(video.ID, video.LessonID)
	ctx := context.Background()
	_, err := punches.UpsertWatchTime(ctx, "u-1", video.ID, 60*time.Second)
	assert.NoError(t, err)

	var calls int
	var gotClaims punchClaims
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		tokenStr := strings.TrimPrefix(r.URL.Path, "/punch/")
		_, err := jwt.ParseWithClaims(tokenStr, &gotClaims, func(t *jwt.Token) (interface{}, error) {
			return []byte(testSecret), nil
		})
		assert.NoError(t, err)
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	bridge := newTestBridge(server.URL, punches)
	learner := &user.UserModel{ID: "u-1", Username: "alice"}
	outcome := bridge.TrySynchronize(ctx, learner, video)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "u-1", gotClaims.UID)
	assert.Equal(t, "safety-01", gotClaims.Section)
	assert.Equal(t, 1.0, gotClaims.Progress)

	punch, err := punches.GetByUserVideo(ctx, "u-1", video.ID)
	assert.NoError(t, err)
	assert.True(t, punch.Synced)

	required, err := bridge.SyncRequired(ctx, "u-1", video, punch)
	assert.NoError(t, err)
	assert.False(t, required, "later reports must not repeat the call")
}

func TestTrySynchronize_NotAcknowledged(t *testing.T) {
	_, video := newTestCatalog(catalog.GranularityVideo)
	punches := progress.NewMemoryPunchRepository(false)
	punches.RegisterVideo(video.ID, video.LessonID)
	ctx := context.Background()
	_, err := punches.UpsertWatchTime(ctx, "u-1", video.ID, 60*time.Second)
	assert.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false}`))
	}))
	defer server.Close()

	bridge := newTestBridge(server.URL, punches)
	learner := &user.UserModel{ID: "u-1", Username: "alice"}
	outcome := bridge.TrySynchronize(ctx, learner, video)
	assert.Equal(t, OutcomeTransient, outcome)

	punch, err := punches.GetByUserVideo(ctx, "u-1", video.ID)
	assert.NoError(t, err)
	assert.False(t, punch.Synced, "rejected call must leave the flag clear for retry")
}

func TestTrySynchronize_NetworkError(t *testing.T) {
	_, video := newTestCatalog(catalog.GranularityVideo)
	punches := progress.NewMemoryPunchRepository(false)
	punches.RegisterVideo(video.ID, video.LessonID)
	ctx := context.Background()
	_, err := punches.UpsertWatchTime(ctx, "u-1", video.ID, 60*time.Second)
	assert.NoError(t, err)

	// closed immediately, every request fails
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	bridge := newTestBridge(server.URL, punches)
	learner := &user.UserModel{ID: "u-1", Username: "alice"}
	outcome := bridge.TrySynchronize(ctx, learner, video)
	assert.Equal(t, OutcomeTransient, outcome)

	punch, err := punches.GetByUserVideo(ctx, "u-1", video.ID)
	assert.NoError(t, err)
	assert.False(t, punch.Synced)
}

func TestSyncRequired_LessonUnitAcknowledgedBeforeLastVideo(t *testing.T) {
	lessonType := &catalog.LessonTypeModel{ID: 2, Name: "ops", SyncAs: catalog.GranularityLesson}
	first := &catalog.VideoModel{ID: 21, Name: "ops-01", Duration: 40 * time.Second}
	second := &catalog.VideoModel{ID: 22, Name: "ops-02", Duration: 20 * time.Second}
	lesson := &catalog.LessonModel{
		ID:        2,
		TypeID:    lessonType.ID,
		Type:      lessonType,
		Name:      "Operations",
		Threshold: 0.6,
		Videos:    []*catalog.VideoModel{first, second},
	}
	for _, v := range lesson.Videos {
		v.LessonID = lesson.ID
		v.Lesson = lesson
	}

	punches := progress.NewMemoryPunchRepository(false)
	punches.RegisterVideo(first.ID, lesson.ID)
	punches.RegisterVideo(second.ID, lesson.ID)
	ctx := context.Background()

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()
	bridge := newTestBridge(server.URL, punches)
	learner := &user.UserModel{ID: "u-1", Username: "alice"}

	// 40s of 60s crosses the 0.6 lesson threshold with the second video
	// never punched
	punch, err := punches.UpsertWatchTime(ctx, "u-1", first.ID, 40*time.Second)
	assert.NoError(t, err)
	required, err := bridge.SyncRequired(ctx, "u-1", first, punch)
	assert.NoError(t, err)
	assert.True(t, required)
	assert.Equal(t, OutcomeSuccess, bridge.TrySynchronize(ctx, learner, first))
	assert.Equal(t, 1, calls)

	// the first punch on the sibling video starts a fresh unsynced row,
	// the unit itself is already acknowledged
	punch, err = punches.UpsertWatchTime(ctx, "u-1", second.ID, 20*time.Second)
	assert.NoError(t, err)
	assert.False(t, punch.Synced)
	required, err = bridge.SyncRequired(ctx, "u-1", second, punch)
	assert.NoError(t, err)
	assert.False(t, required, "acknowledged lesson unit must not be reported again")
	assert.Equal(t, 1, calls)
}

func TestTrySynchronize_LessonUnit(t *testing.T) {
	lessonType := &catalog.LessonTypeModel{ID: 2, Name: "ops", SyncAs: catalog.GranularityLesson}
	first := &catalog.VideoModel{ID: 21, Name: "ops-01", Duration: 40 * time.Second}
	second := &catalog.VideoModel{ID: 22, Name: "ops-02", Duration: 20 * time.Second}
	lesson := &catalog.LessonModel{
		ID:        2,
		TypeID:    lessonType.ID,
		Type:      lessonType,
		Name:      "Operations",
		Threshold: 0.8,
		Videos:    []*catalog.VideoModel{first, second},
	}
	for _, v := range lesson.Videos {
		v.LessonID = lesson.ID
		v.Lesson = lesson
	}

	punches := progress.NewMemoryPunchRepository(false)
	punches.RegisterVideo(first.ID, lesson.ID)
	punches.RegisterVideo(second.ID, lesson.ID)
	ctx := context.Background()
	_, err := punches.UpsertWatchTime(ctx, "u-1", first.ID, 40*time.Second)
	assert.NoError(t, err)
	_, err = punches.UpsertWatchTime(ctx, "u-1", second.ID, 20*time.Second)
	assert.NoError(t, err)

	var gotClaims punchClaims
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := strings.TrimPrefix(r.URL.Path, "/punch/")
		_, err := jwt.ParseWithClaims(tokenStr, &gotClaims, func(t *jwt.Token) (interface{}, error) {
			return []byte(testSecret), nil
		})
		assert.NoError(t, err)
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	bridge := newTestBridge(server.URL, punches)
	learner := &user.UserModel{ID: "u-1", Username: "alice"}
	outcome := bridge.TrySynchronize(ctx, learner, second)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.Equal(t, "Operations", gotClaims.Section, "lesson units report the lesson name")

	// the acknowledgment covers every video of the lesson
	for _, id := range []int{first.ID, second.ID} {
		punch, err := punches.GetByUserVideo(ctx, "u-1", id)
		assert.NoError(t, err)
		assert.True(t, punch.Synced)
	}
}
