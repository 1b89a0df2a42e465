package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/yvod/yvod/internal/infrastructure/driver"
)

type CatalogRepositoryImpl struct {
	Conn driver.ITransactionalDB
}

var _ CatalogRepository = &CatalogRepositoryImpl{}

func NewCatalogRepository(Conn driver.ITransactionalDB) *CatalogRepositoryImpl {
	return &CatalogRepositoryImpl{
		Conn: Conn,
	}
}

func (repo *CatalogRepositoryImpl) GetVideoByID(ctx context.Context, id int) (*VideoModel, error) {
	conn := repo.Conn
	row, err := conn.QueryContext(ctx, `
SELECT
    v.lesson_id, l.type_id, l."name", l."order", l.threshold,
    lt."name", lt.gating, lt.sync_as
FROM
    video v
        LEFT JOIN
    lesson l ON (l.id = v.lesson_id)
        LEFT JOIN
    lesson_type lt ON (lt.id = l.type_id)
WHERE
    v.id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer row.Close()

	if !row.Next() {
		return nil, ErrVideoNotFound
	}
	lesson := new(LessonModel)
	lessonType := new(LessonTypeModel)
	var gating, syncAs string
	if err := row.Scan(&lesson.ID, &lesson.TypeID, &lesson.Name, &lesson.Order, &lesson.Threshold,
		&lessonType.Name, &gating, &syncAs); err != nil {
		return nil, err
	}
	lessonType.ID = lesson.TypeID
	lessonType.Gating = ParseGranularity(gating)
	lessonType.SyncAs = ParseGranularity(syncAs)
	lesson.Type = lessonType

	if err := repo.loadLessonVideos(ctx, lesson); err != nil {
		return nil, err
	}
	for _, v := range lesson.Videos {
		if v.ID == id {
			return v, nil
		}
	}
	return nil, ErrVideoNotFound
}

func (repo *CatalogRepositoryImpl) GetLessonByID(ctx context.Context, id int) (*LessonModel, error) {
	conn := repo.Conn
	row, err := conn.QueryContext(ctx, `
SELECT
    l.id, l.type_id, l."name", l."order", l.threshold,
    lt."name", lt.gating, lt.sync_as
FROM
    lesson l
        LEFT JOIN
    lesson_type lt ON (lt.id = l.type_id)
WHERE
    l.id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer row.Close()

	if !row.Next() {
		return nil, ErrLessonNotFound
	}
	lesson := new(LessonModel)
	lessonType := new(LessonTypeModel)
	var gating, syncAs string
	if err := row.Scan(&lesson.ID, &lesson.TypeID, &lesson.Name, &lesson.Order, &lesson.Threshold,
		&lessonType.Name, &gating, &syncAs); err != nil {
		return nil, err
	}
	lessonType.ID = lesson.TypeID
	lessonType.Gating = ParseGranularity(gating)
	lessonType.SyncAs = ParseGranularity(syncAs)
	lesson.Type = lessonType

	if err := repo.loadLessonVideos(ctx, lesson); err != nil {
		return nil, err
	}
	return lesson, nil
}

func (repo *CatalogRepositoryImpl) GetLessonsByType(ctx context.Context, typeID int) ([]*LessonModel, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    l.id, l.type_id, l."name", l."order", l.threshold,
    lt."name", lt.gating, lt.sync_as
FROM
    lesson l
        LEFT JOIN
    lesson_type lt ON (lt.id = l.type_id)
WHERE
    l.type_id = $1
ORDER BY l."order" ASC, l.id ASC
	`, typeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*LessonModel
	for rows.Next() {
		lesson := new(LessonModel)
		lessonType := new(LessonTypeModel)
		var gating, syncAs string
		if err := rows.Scan(&lesson.ID, &lesson.TypeID, &lesson.Name, &lesson.Order, &lesson.Threshold,
			&lessonType.Name, &gating, &syncAs); err != nil {
			return nil, err
		}
		lessonType.ID = lesson.TypeID
		lessonType.Gating = ParseGranularity(gating)
		lessonType.SyncAs = ParseGranularity(syncAs)
		lesson.Type = lessonType
		result = append(result, lesson)
	}
	for _, lesson := range result {
		if err := repo.loadLessonVideos(ctx, lesson); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (repo *CatalogRepositoryImpl) UpdateVideoCache(ctx context.Context, videoID int, token string, refreshedAt time.Time) error {
	conn := repo.Conn
	_, err := conn.ExecContext(ctx, `
UPDATE video
SET hls_token = $1,
    hls_refreshed_at = $2
WHERE id = $3
	`, token, refreshedAt, videoID)
	return err
}

// loadLessonVideos attach the lesson's videos in ascending id order,
// the order the gating rule evaluates them in
func (repo *CatalogRepositoryImpl) loadLessonVideos(ctx context.Context, lesson *LessonModel) error {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    id, "name", file_name, duration, hls_token, hls_refreshed_at
FROM
    video
WHERE
    lesson_id = $1
ORDER BY id ASC
	`, lesson.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	var videos []*VideoModel
	for rows.Next() {
		item := new(VideoModel)
		var seconds int64
		var token sql.NullString
		var refreshed sql.NullTime
		if err := rows.Scan(&item.ID, &item.Name, &item.FileName, &seconds, &token, &refreshed); err != nil {
			return err
		}
		item.LessonID = lesson.ID
		item.Lesson = lesson
		item.Duration = time.Duration(seconds) * time.Second
		if token.Valid {
			item.HLSToken = token.String
		}
		if refreshed.Valid {
			at := refreshed.Time
			item.HLSRefreshedAt = &at
		}
		videos = append(videos, item)
	}
	lesson.Videos = videos
	return nil
}
