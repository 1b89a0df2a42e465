package ysync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-resty/resty/v2"
	"github.com/yvod/yvod/internal/catalog"
	"github.com/yvod/yvod/internal/infrastructure/logging"
	"github.com/yvod/yvod/internal/progress"
	"github.com/yvod/yvod/internal/user"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// Outcome result of one synchronization attempt
type Outcome int

const (
	// OutcomeSuccess the remote system acknowledged the unit
	OutcomeSuccess Outcome = iota
	// OutcomeTransient network error, timeout or missing acknowledgment.
	// The synced flag stays untouched so the next report retries
	OutcomeTransient
)

// punchClaims signed, time-limited token identifying the completed unit
type punchClaims struct {
	UID      string  `json:"uid"`
	Section  string  `json:"section"`
	Progress float64 `json:"progress"`

	jwt.StandardClaims
}

type ackResponse struct {
	Success *bool `json:"success"`
}

// Bridge pushes newly completed sync units to the external progress system.
// One attempt per qualifying report, retried lazily by later reports
type Bridge struct {
	Punches    progress.PunchRepository
	Calculator *progress.Calculator

	client   *resty.Client
	baseURL  string
	secret   []byte
	tokenTTL time.Duration
}

// NewBridge an empty baseURL yields a disabled bridge
func NewBridge(
	baseURL string,
	secret string,
	tokenTTL time.Duration,
	timeout time.Duration,
	Punches progress.PunchRepository,
	Calculator *progress.Calculator,
) *Bridge {
	return &Bridge{
		Punches:    Punches,
		Calculator: Calculator,
		client:     resty.New().SetTimeout(timeout),
		baseURL:    baseURL,
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
	}
}

// Enabled whether an external system is configured
func (b *Bridge) Enabled() bool {
	return b.baseURL != ""
}

// SyncRequired the governing unit just crossed its threshold and has not
// been acknowledged yet. Guarantees idempotence of retried reports
func (b *Bridge) SyncRequired(ctx context.Context, userID string, video *catalog.VideoModel, punch *progress.PunchModel) (bool, error) {
	if !b.Enabled() || punch == nil || punch.Synced {
		return false, nil
	}
	switch video.Lesson.Type.SyncAs {
	case catalog.GranularityVideo:
		return b.Calculator.VideoComplete(ctx, userID, video)
	case catalog.GranularityLesson:
		complete, err := b.Calculator.LessonComplete(ctx, userID, video.Lesson)
		if err != nil || !complete {
			return false, err
		}
		return b.lessonUnsynced(ctx, userID, video.Lesson)
	}
	return false, nil
}

// lessonUnsynced a lesson unit counts as acknowledged once any of its punch
// rows carries the synced flag. The acknowledgment can only flip rows that
// exist, so a later first punch on a sibling video starts unsynced even
// though its unit has already been reported
func (b *Bridge) lessonUnsynced(ctx context.Context, userID string, lesson *catalog.LessonModel) (bool, error) {
	punches, err := b.Punches.GetByUserLesson(ctx, userID, lesson.ID)
	if err != nil {
		return false, err
	}
	for _, item := range punches {
		if item.Synced {
			return false, nil
		}
	}
	return true, nil
}

// TrySynchronize one outbound call for the unit the video belongs to.
// Success flips the synced flag across the whole unit, anything else is
// logged and swallowed
func (b *Bridge) TrySynchronize(ctx context.Context, learner *user.UserModel, video *catalog.VideoModel) Outcome {
	apmSpan, ctx := apm.StartSpan(ctx, "Bridge.TrySynchronize", "external")
	defer apmSpan.End()
	logger := logging.ExtractLoggerFromContext(ctx)

	section, ratio, unitIDs, err := b.unitOf(ctx, learner.ID, video)
	if err != nil {
		logger.Warn("Failed to resolve sync unit", zap.Error(err), zap.Int("video.id", video.ID))
		return OutcomeTransient
	}

	tokenStr, err := b.signToken(learner.ID, section, ratio)
	if err != nil {
		logger.Warn("Failed to sign sync token", zap.Error(err))
		return OutcomeTransient
	}

	resp, err := b.client.R().SetContext(ctx).Post(b.baseURL + "/punch/" + tokenStr)
	if err != nil {
		logger.Warn("Progress sync request failed", zap.Error(err), zap.String("sync.section", section))
		return OutcomeTransient
	}

	var ack ackResponse
	if err := json.Unmarshal(resp.Body(), &ack); err != nil || ack.Success == nil || !*ack.Success {
		logger.Warn("Progress sync not acknowledged",
			zap.Int("http.response.status_code", resp.StatusCode()),
			zap.String("sync.section", section))
		return OutcomeTransient
	}

	if err := b.Punches.MarkSynchronized(ctx, learner.ID, unitIDs); err != nil {
		logger.Error("Failed to record sync acknowledgment", zap.Error(err), zap.String("sync.section", section))
		return OutcomeTransient
	}
	logger.Info("Progress synchronized",
		zap.String("sync.section", section),
		zap.Float64("sync.progress", ratio))
	return OutcomeSuccess
}

// unitOf section name, progress value and member video ids of the sync unit
func (b *Bridge) unitOf(ctx context.Context, userID string, video *catalog.VideoModel) (string, float64, []int, error) {
	lesson := video.Lesson
	if lesson.Type.SyncAs == catalog.GranularityVideo {
		ratio, err := b.Calculator.VideoProgress(ctx, userID, video)
		if err != nil {
			return "", 0, nil, err
		}
		return video.Name, ratio, []int{video.ID}, nil
	}

	ratio, err := b.Calculator.LessonProgress(ctx, userID, lesson)
	if err != nil {
		return "", 0, nil, err
	}
	ids := make([]int, 0, len(lesson.Videos))
	for _, v := range lesson.Videos {
		ids = append(ids, v.ID)
	}
	return lesson.Name, ratio, ids, nil
}

func (b *Bridge) signToken(userID, section string, ratio float64) (string, error) {
	now := time.Now()
	claims := &punchClaims{
		UID:      userID,
		Section:  section,
		Progress: ratio,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(b.tokenTTL).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(b.secret)
}
