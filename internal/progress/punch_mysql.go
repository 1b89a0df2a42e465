package progress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yvod/yvod/internal/infrastructure/driver"
)

type PunchMySQL struct {
	Conn driver.ITransactionalDB
	// HighWaterMark keeps max(existing, reported) instead of the plain
	// overwrite, so a stale tab cannot regress recorded progress
	HighWaterMark bool
}

var _ PunchRepository = &PunchMySQL{}

func NewPunchRepository(Conn driver.ITransactionalDB, highWaterMark bool) *PunchMySQL {
	return &PunchMySQL{
		Conn:          Conn,
		HighWaterMark: highWaterMark,
	}
}

// WithConn rebind to a transaction, flags carry over
func (repo *PunchMySQL) WithConn(conn driver.ITransactionalDB) PunchRepository {
	return &PunchMySQL{
		Conn:          conn,
		HighWaterMark: repo.HighWaterMark,
	}
}

func (repo *PunchMySQL) UpsertWatchTime(ctx context.Context, userID string, videoID int, playTime time.Duration) (*PunchModel, error) {
	conn := repo.Conn
	existing, err := repo.getByUserVideo(ctx, conn, userID, videoID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if existing == nil {
		if _, err := conn.ExecContext(ctx, `
INSERT INTO punch(user_id, video_id, play_time, synced, "timestamp")
VALUES($1, $2, $3, $4, $5)
		`, userID, videoID, playTime.Seconds(), false, now); err != nil {
			return nil, err
		}
		return repo.getByUserVideo(ctx, conn, userID, videoID)
	}

	if repo.HighWaterMark && playTime < existing.PlayTime {
		playTime = existing.PlayTime
	}
	if _, err := conn.ExecContext(ctx, `
UPDATE punch
SET play_time = $1,
    "timestamp" = $2
WHERE user_id = $3 AND video_id = $4
	`, playTime.Seconds(), now, userID, videoID); err != nil {
		return nil, err
	}
	existing.PlayTime = playTime
	existing.Timestamp = &now
	return existing, nil
}

func (repo *PunchMySQL) GetByUserVideo(ctx context.Context, userID string, videoID int) (*PunchModel, error) {
	return repo.getByUserVideo(ctx, repo.Conn, userID, videoID)
}

func (repo *PunchMySQL) getByUserVideo(ctx context.Context, conn driver.ITransactionalDB, userID string, videoID int) (*PunchModel, error) {
	rows, err := conn.QueryContext(ctx, `
SELECT id, user_id, video_id, play_time, synced, "timestamp"
FROM punch
WHERE user_id = $1 AND video_id = $2
	`, userID, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if rows.Next() {
		return scanPunch(rows)
	}
	return nil, nil
}

func (repo *PunchMySQL) GetByUserLesson(ctx context.Context, userID string, lessonID int) ([]*PunchModel, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT p.id, p.user_id, p.video_id, p.play_time, p.synced, p."timestamp"
FROM punch p
    JOIN video v ON (v.id = p.video_id)
WHERE p.user_id = $1 AND v.lesson_id = $2
	`, userID, lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*PunchModel
	for rows.Next() {
		item, err := scanPunch(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, nil
}

func (repo *PunchMySQL) MarkSynchronized(ctx context.Context, userID string, videoIDs []int) error {
	if len(videoIDs) == 0 {
		return nil
	}
	conn := repo.Conn
	placeholders := make([]string, 0, len(videoIDs))
	args := []interface{}{time.Now().UTC(), userID}
	for i, id := range videoIDs {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+3))
		args = append(args, id)
	}
	query := fmt.Sprintf(`
UPDATE punch
SET synced = TRUE,
    "timestamp" = $1
WHERE user_id = $2 AND video_id IN (%s)
	`, strings.Join(placeholders, ", "))
	_, err := conn.ExecContext(ctx, query, args...)
	return err
}

func (repo *PunchMySQL) GetActiveUserIDsSince(ctx context.Context, since time.Time) ([]string, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT DISTINCT user_id
FROM punch
WHERE "timestamp" >= $1
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, nil
}

func scanPunch(rows driver.ISQLRows) (*PunchModel, error) {
	item := new(PunchModel)
	var seconds float64
	if err := rows.Scan(&item.ID, &item.UserID, &item.VideoID, &seconds, &item.Synced, &item.Timestamp); err != nil {
		return nil, err
	}
	item.PlayTime = time.Duration(seconds * float64(time.Second))
	return item, nil
}
