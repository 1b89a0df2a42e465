package progress

import (
	"context"
	"time"

	"github.com/yvod/yvod/internal/infrastructure/driver"
)

// PunchModel one watch-time record per (learner, video) pair.
// PlayTime is the absolute position the player last reported, not a delta
type PunchModel struct {
	ID        int           `json:"-"`
	UserID    string        `json:"-"`
	VideoID   int           `json:"video_id"`
	PlayTime  time.Duration `json:"play_time"`
	Synced    bool          `json:"synced"`
	Timestamp *time.Time    `json:"-"`
}

// PunchRepository owns the durable punch rows
type PunchRepository interface {
	// WithConn rebind the repository to the given connection or transaction
	WithConn(conn driver.ITransactionalDB) PunchRepository
	// UpsertWatchTime create the record on first report, otherwise overwrite
	// the stored position. Negative reports are rejected by the caller
	UpsertWatchTime(ctx context.Context, userID string, videoID int, playTime time.Duration) (*PunchModel, error)
	GetByUserVideo(ctx context.Context, userID string, videoID int) (*PunchModel, error)
	GetByUserLesson(ctx context.Context, userID string, lessonID int) ([]*PunchModel, error)
	// MarkSynchronized flip the synced flag on every listed video at once so
	// per-video checks of a lesson unit keep agreeing. Idempotent
	MarkSynchronized(ctx context.Context, userID string, videoIDs []int) error
	GetActiveUserIDsSince(ctx context.Context, since time.Time) ([]string, error)
}
