package study

import (
	"context"
	"time"

	"github.com/yvod/yvod/internal/infrastructure/driver"
)

// learner activities recorded in the study log
const (
	ActivityWatch = "watch"
)

// StudyLogModel one audit row per notable learner activity.
// Watch entries are written once, on the first report for a video
type StudyLogModel struct {
	ID        int       `json:"-"`
	UserID    string    `json:"-"`
	Activity  string    `json:"activity"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// StudyLogRepository owns the durable audit rows
type StudyLogRepository interface {
	// WithConn rebind the repository to the given connection or transaction
	WithConn(conn driver.ITransactionalDB) StudyLogRepository
	Append(ctx context.Context, entry *StudyLogModel) error
	GetByUser(ctx context.Context, userID string, limit int) ([]*StudyLogModel, error)
}
