package study

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yvod/yvod/internal/catalog"
	"github.com/yvod/yvod/internal/infrastructure/driver"
	"github.com/yvod/yvod/internal/progress"
	"github.com/yvod/yvod/internal/unlock"
	"github.com/yvod/yvod/internal/user"
	"github.com/yvod/yvod/internal/ysync"
)

// nopConn satisfies ITransactionalDB for stores that keep state in memory
type nopConn struct{}

var _ driver.ITransactionalDB = nopConn{}

func (nopConn) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, errors.New("not backed by a database")
}
func (nopConn) QueryContext(ctx context.Context, query string, args ...interface{}) (driver.ISQLRows, error) {
	return nil, errors.New("not backed by a database")
}
func (nopConn) BeginTx(ctx context.Context, opts *driver.TxOptions) (driver.ITransactionalDB, error) {
	return nopConn{}, nil
}
func (nopConn) Commit(ctx context.Context) error   { return nil }
func (nopConn) Rollback(ctx context.Context) error { return nil }
func (nopConn) Close(ctx context.Context) error    { return nil }
func (nopConn) Ping() error                        { return nil }

type studyFixture struct {
	useCase *StudyUseCaseImpl
	catalog *catalog.MemoryCatalogRepository
	punches *progress.MemoryPunchRepository
	logs    *MemoryStudyLogRepository
}

// newStudyFixture one per-video gated lesson with two 60s videos and a 0.8
// threshold, sync pointed at the given endpoint
func newStudyFixture(t *testing.T, syncURL string) (*studyFixture, *catalog.VideoModel, *catalog.VideoModel) {
	t.Helper()

	lessonType := &catalog.LessonTypeModel{
		ID:     1,
		Name:   "safety",
		Gating: catalog.GranularityVideo,
		SyncAs: catalog.GranularityVideo,
	}
	first := &catalog.VideoModel{ID: 11, Name: "safety-01", FileName: "safety-01.mp4", Duration: 60 * time.Second}
	second := &catalog.VideoModel{ID: 12, Name: "safety-02", FileName: "safety-02.mp4", Duration: 60 * time.Second}
	lesson := &catalog.LessonModel{
		ID:        1,
		TypeID:    lessonType.ID,
		Type:      lessonType,
		Name:      "Safety Basics",
		Order:     1,
		Threshold: 0.8,
		Videos:    []*catalog.VideoModel{first, second},
	}

	catalogRepo := catalog.NewMemoryCatalogRepository()
	catalogRepo.AddLesson(lesson)
	punches := progress.NewMemoryPunchRepository(false)
	punches.RegisterVideo(first.ID, lesson.ID)
	punches.RegisterVideo(second.ID, lesson.ID)
	logs := NewMemoryStudyLogRepository()
	calculator := progress.NewCalculator(punches)
	bridge := ysync.NewBridge(syncURL, "sync-secret", 5*time.Minute, 2*time.Second, punches, calculator)

	useCase := NewStudyUseCase(
		nopConn{},
		catalogRepo,
		punches,
		logs,
		calculator,
		unlock.NewPolicy(catalogRepo, calculator),
		bridge,
		nil,
		5*time.Minute,
	)
	return &studyFixture{
		useCase: useCase,
		catalog: catalogRepo,
		punches: punches,
		logs:    logs,
	}, first, second
}

func ackServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRecordPlayback_ProgressBelowThreshold(t *testing.T) {
	var calls int
	server := ackServer(t, &calls)
	fixture, first, _ := newStudyFixture(t, server.URL)
	learner := &user.UserModel{ID: "u-1", Username: "alice"}

	result, err := fixture.useCase.RecordPlayback(context.Background(), learner, first.ID, 30*time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, result.Progress, 1e-9)
	assert.False(t, result.Complete)
	assert.False(t, result.Synced)
	assert.Equal(t, 0, calls, "incomplete unit must not reach the external system")
}

func TestRecordPlayback_CompletionSyncsOnce(t *testing.T) {
	var calls int
	server := ackServer(t, &calls)
	fixture, first, _ := newStudyFixture(t, server.URL)
	learner := &user.UserModel{ID: "u-1", Username: "alice"}
	ctx := context.Background()

	result, err := fixture.useCase.RecordPlayback(ctx, learner, first.ID, 50*time.Second)
	require.NoError(t, err)
	assert.True(t, result.Complete)
	assert.True(t, result.Synced)
	assert.Equal(t, 1, calls)

	// later reports of the same unit stay acknowledged without another call
	result, err = fixture.useCase.RecordPlayback(ctx, learner, first.ID, 55*time.Second)
	require.NoError(t, err)
	assert.True(t, result.Complete)
	assert.True(t, result.Synced)
	assert.Equal(t, 1, calls)
}

func TestRecordPlayback_FirstWatchLoggedOnce(t *testing.T) {
	fixture, first, _ := newStudyFixture(t, "")
	learner := &user.UserModel{ID: "u-1", Username: "alice"}
	ctx := context.Background()

	_, err := fixture.useCase.RecordPlayback(ctx, learner, first.ID, 10*time.Second)
	require.NoError(t, err)
	_, err = fixture.useCase.RecordPlayback(ctx, learner, first.ID, 20*time.Second)
	require.NoError(t, err)

	entries, err := fixture.logs.GetByUser(ctx, learner.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ActivityWatch, entries[0].Activity)
	assert.Equal(t, "safety-01", entries[0].Detail)
}

func TestRecordPlayback_GatedVideoDenied(t *testing.T) {
	fixture, _, second := newStudyFixture(t, "")
	learner := &user.UserModel{ID: "u-1", Username: "alice"}

	_, err := fixture.useCase.RecordPlayback(context.Background(), learner, second.ID, 10*time.Second)
	assert.Equal(t, unlock.ErrAccessDenied, err)
}

func TestRecordPlayback_CoordinatorBypassesGate(t *testing.T) {
	fixture, _, second := newStudyFixture(t, "")
	coordinator := &user.UserModel{ID: "c-1", Username: "carol", Coordinator: true}

	result, err := fixture.useCase.RecordPlayback(context.Background(), coordinator, second.ID, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, result.Complete)
}

func TestRecordPlayback_GateOpensAfterCompletion(t *testing.T) {
	fixture, first, second := newStudyFixture(t, "")
	learner := &user.UserModel{ID: "u-1", Username: "alice"}
	ctx := context.Background()

	_, err := fixture.useCase.RecordPlayback(ctx, learner, first.ID, 48*time.Second)
	require.NoError(t, err)
	result, err := fixture.useCase.RecordPlayback(ctx, learner, second.ID, 10*time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 10.0/60.0, result.Progress, 1e-9)
}

func TestRecordPlayback_NegativePlayTime(t *testing.T) {
	fixture, first, _ := newStudyFixture(t, "")
	learner := &user.UserModel{ID: "u-1", Username: "alice"}

	_, err := fixture.useCase.RecordPlayback(context.Background(), learner, first.ID, -1*time.Second)
	assert.Equal(t, ErrInvalidPlayTime, err)
}

func TestRecordPlayback_UnknownVideo(t *testing.T) {
	fixture, _, _ := newStudyFixture(t, "")
	learner := &user.UserModel{ID: "u-1", Username: "alice"}

	_, err := fixture.useCase.RecordPlayback(context.Background(), learner, 999, 10*time.Second)
	assert.Equal(t, catalog.ErrVideoNotFound, err)
}

func TestRecordPlayback_OverReportClamped(t *testing.T) {
	fixture, first, _ := newStudyFixture(t, "")
	learner := &user.UserModel{ID: "u-1", Username: "alice"}

	result, err := fixture.useCase.RecordPlayback(context.Background(), learner, first.ID, 600*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Progress)
	assert.True(t, result.Complete)
}

func TestGetVideoDetail(t *testing.T) {
	fixture, first, second := newStudyFixture(t, "")
	learner := &user.UserModel{ID: "u-1", Username: "alice"}
	ctx := context.Background()

	_, err := fixture.useCase.RecordPlayback(ctx, learner, first.ID, 30*time.Second)
	require.NoError(t, err)

	detail, err := fixture.useCase.GetVideoDetail(ctx, learner, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, detail.Video.ID)
	assert.InDelta(t, 0.5, detail.Progress, 1e-9)
	assert.Empty(t, detail.HLSURL, "no URL without cache mode")

	_, err = fixture.useCase.GetVideoDetail(ctx, learner, second.ID)
	assert.Equal(t, unlock.ErrAccessDenied, err)
}

func TestAuthorizeStream(t *testing.T) {
	fixture, first, second := newStudyFixture(t, "")
	learner := &user.UserModel{ID: "u-1", Username: "alice"}
	ctx := context.Background()

	video, err := fixture.useCase.AuthorizeStream(ctx, learner, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "safety-01.mp4", video.FileName)

	_, err = fixture.useCase.AuthorizeStream(ctx, learner, second.ID)
	assert.Equal(t, unlock.ErrAccessDenied, err)
}

func TestActiveLearnerIDs(t *testing.T) {
	fixture, first, _ := newStudyFixture(t, "")
	ctx := context.Background()

	_, err := fixture.useCase.RecordPlayback(ctx, &user.UserModel{ID: "u-1", Username: "alice"}, first.ID, 10*time.Second)
	require.NoError(t, err)
	_, err = fixture.useCase.RecordPlayback(ctx, &user.UserModel{ID: "u-2", Username: "bob"}, first.ID, 15*time.Second)
	require.NoError(t, err)

	ids, err := fixture.useCase.ActiveLearnerIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u-1", "u-2"}, ids)
}
