package study

import (
	"context"
	"errors"
	"time"

	"github.com/yvod/yvod/internal/catalog"
	"github.com/yvod/yvod/internal/infrastructure/driver"
	"github.com/yvod/yvod/internal/infrastructure/logging"
	"github.com/yvod/yvod/internal/media"
	"github.com/yvod/yvod/internal/progress"
	"github.com/yvod/yvod/internal/unlock"
	"github.com/yvod/yvod/internal/user"
	"github.com/yvod/yvod/internal/ysync"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// ErrInvalidPlayTime reported playback position is negative
var ErrInvalidPlayTime = errors.New("Play time must not be negative")

// PlaybackResult outcome of one progress report, expressed over the video's
// governing unit
type PlaybackResult struct {
	Progress float64 `json:"progress"`
	Complete bool    `json:"complete"`
	Synced   bool    `json:"synced"`
}

// VideoDetail player-facing metadata for one video
type VideoDetail struct {
	Video    *catalog.VideoModel `json:"video"`
	Progress float64             `json:"progress"`
	HLSURL   string              `json:"hls_url,omitempty"`
}

// StudyUseCase the learner-facing study operations
type StudyUseCase interface {
	// RecordPlayback gate, persist and evaluate one progress report
	RecordPlayback(ctx context.Context, learner *user.UserModel, videoID int, playTime time.Duration) (*PlaybackResult, error)
	// GetVideoDetail metadata plus current progress, gated like playback
	GetVideoDetail(ctx context.Context, learner *user.UserModel, videoID int) (*VideoDetail, error)
	// AuthorizeStream resolve and gate a video for byte delivery
	AuthorizeStream(ctx context.Context, learner *user.UserModel, videoID int) (*catalog.VideoModel, error)
	// ActiveLearnerIDs learners with punch activity inside the status window
	ActiveLearnerIDs(ctx context.Context) ([]string, error)
}

type StudyUseCaseImpl struct {
	Conn       driver.ITransactionalDB
	Catalog    catalog.CatalogRepository
	Punches    progress.PunchRepository
	Logs       StudyLogRepository
	Calculator *progress.Calculator
	Policy     *unlock.Policy
	Bridge     *ysync.Bridge
	HLS        *media.HLSCache // nil when cache mode is off

	StatusWindow time.Duration
}

var _ StudyUseCase = &StudyUseCaseImpl{}

func NewStudyUseCase(
	Conn driver.ITransactionalDB,
	Catalog catalog.CatalogRepository,
	Punches progress.PunchRepository,
	Logs StudyLogRepository,
	Calculator *progress.Calculator,
	Policy *unlock.Policy,
	Bridge *ysync.Bridge,
	HLS *media.HLSCache,
	statusWindow time.Duration,
) *StudyUseCaseImpl {
	return &StudyUseCaseImpl{
		Conn:         Conn,
		Catalog:      Catalog,
		Punches:      Punches,
		Logs:         Logs,
		Calculator:   Calculator,
		Policy:       Policy,
		Bridge:       Bridge,
		HLS:          HLS,
		StatusWindow: statusWindow,
	}
}

// RecordPlayback the punch write and the first-watch log entry commit
// together; the sync attempt runs after commit and only shapes the response
func (su *StudyUseCaseImpl) RecordPlayback(ctx context.Context, learner *user.UserModel, videoID int, playTime time.Duration) (*PlaybackResult, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "StudyUseCaseImpl.RecordPlayback", "service")
	defer apmSpan.End()

	if playTime < 0 {
		return nil, ErrInvalidPlayTime
	}
	video, err := su.Catalog.GetVideoByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	allowed, err := su.Policy.CanAccessVideo(ctx, learner, video)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, unlock.ErrAccessDenied
	}

	punch, err := su.persistPunch(ctx, learner, video, playTime)
	if err != nil {
		return nil, err
	}

	ratio, complete, err := su.unitProgress(ctx, learner.ID, video)
	if err != nil {
		return nil, err
	}

	synced := punch.Synced
	if required, err := su.Bridge.SyncRequired(ctx, learner.ID, video, punch); err != nil {
		return nil, err
	} else if required {
		synced = su.Bridge.TrySynchronize(ctx, learner, video) == ysync.OutcomeSuccess
	}

	return &PlaybackResult{
		Progress: ratio,
		Complete: complete,
		Synced:   synced,
	}, nil
}

func (su *StudyUseCaseImpl) persistPunch(ctx context.Context, learner *user.UserModel, video *catalog.VideoModel, playTime time.Duration) (*progress.PunchModel, error) {
	tx, err := su.Conn.BeginTx(ctx, &driver.TxOptions{})
	if err != nil {
		return nil, err
	}

	punches := su.Punches.WithConn(tx)
	existing, err := punches.GetByUserVideo(ctx, learner.ID, video.ID)
	if err != nil {
		tx.Rollback(ctx)
		return nil, err
	}
	punch, err := punches.UpsertWatchTime(ctx, learner.ID, video.ID, playTime)
	if err != nil {
		tx.Rollback(ctx)
		return nil, err
	}
	if existing == nil {
		entry := &StudyLogModel{
			UserID:    learner.ID,
			Activity:  ActivityWatch,
			Detail:    video.Name,
			Timestamp: time.Now().UTC(),
		}
		if err := su.Logs.WithConn(tx).Append(ctx, entry); err != nil {
			tx.Rollback(ctx)
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return punch, nil
}

// GetVideoDetail the HLS URL is attached only when cache mode is on, and a
// failed cache rotation degrades to metadata without the URL
func (su *StudyUseCaseImpl) GetVideoDetail(ctx context.Context, learner *user.UserModel, videoID int) (*VideoDetail, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "StudyUseCaseImpl.GetVideoDetail", "service")
	defer apmSpan.End()

	video, err := su.Catalog.GetVideoByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	allowed, err := su.Policy.CanAccessVideo(ctx, learner, video)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, unlock.ErrAccessDenied
	}

	ratio, _, err := su.unitProgress(ctx, learner.ID, video)
	if err != nil {
		return nil, err
	}
	detail := &VideoDetail{
		Video:    video,
		Progress: ratio,
	}
	if su.HLS != nil {
		url, err := su.HLS.PlaylistURL(ctx, video)
		if err != nil {
			logging.ExtractLoggerFromContext(ctx).Warn("Failed to refresh video cache",
				zap.Error(err), zap.Int("video.id", video.ID))
		} else {
			detail.HLSURL = url
		}
	}
	return detail, nil
}

// AuthorizeStream used by the byte endpoint, access denial maps to the
// placeholder clip redirect
func (su *StudyUseCaseImpl) AuthorizeStream(ctx context.Context, learner *user.UserModel, videoID int) (*catalog.VideoModel, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "StudyUseCaseImpl.AuthorizeStream", "service")
	defer apmSpan.End()

	video, err := su.Catalog.GetVideoByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	allowed, err := su.Policy.CanAccessVideo(ctx, learner, video)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, unlock.ErrAccessDenied
	}
	return video, nil
}

func (su *StudyUseCaseImpl) ActiveLearnerIDs(ctx context.Context) ([]string, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "StudyUseCaseImpl.ActiveLearnerIDs", "service")
	defer apmSpan.End()

	since := time.Now().UTC().Add(-su.StatusWindow)
	return su.Punches.GetActiveUserIDsSince(ctx, since)
}

// unitProgress ratio and completion over the video's governing unit: the
// declared sync granularity, falling back to the gating granularity, falling
// back to the single video
func (su *StudyUseCaseImpl) unitProgress(ctx context.Context, userID string, video *catalog.VideoModel) (float64, bool, error) {
	granularity := video.Lesson.Type.SyncAs
	if granularity == catalog.GranularityNone {
		granularity = video.Lesson.Type.Gating
	}

	if granularity == catalog.GranularityLesson {
		ratio, err := su.Calculator.LessonProgress(ctx, userID, video.Lesson)
		if err != nil {
			return 0, false, err
		}
		complete, err := su.Calculator.LessonComplete(ctx, userID, video.Lesson)
		if err != nil {
			return 0, false, err
		}
		return ratio, complete, nil
	}

	ratio, err := su.Calculator.VideoProgress(ctx, userID, video)
	if err != nil {
		return 0, false, err
	}
	complete, err := su.Calculator.VideoComplete(ctx, userID, video)
	if err != nil {
		return 0, false, err
	}
	return ratio, complete, nil
}
