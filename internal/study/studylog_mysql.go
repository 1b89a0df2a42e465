package study

import (
	"context"

	"github.com/yvod/yvod/internal/infrastructure/driver"
)

type StudyLogMySQL struct {
	Conn driver.ITransactionalDB
}

var _ StudyLogRepository = &StudyLogMySQL{}

func NewStudyLogRepository(Conn driver.ITransactionalDB) *StudyLogMySQL {
	return &StudyLogMySQL{Conn: Conn}
}

// WithConn rebind to a transaction
func (repo *StudyLogMySQL) WithConn(conn driver.ITransactionalDB) StudyLogRepository {
	return &StudyLogMySQL{Conn: conn}
}

func (repo *StudyLogMySQL) Append(ctx context.Context, entry *StudyLogModel) error {
	_, err := repo.Conn.ExecContext(ctx, `
INSERT INTO user_log(user_id, activity, detail, "timestamp")
VALUES($1, $2, $3, $4)
	`, entry.UserID, entry.Activity, entry.Detail, entry.Timestamp)
	return err
}

func (repo *StudyLogMySQL) GetByUser(ctx context.Context, userID string, limit int) ([]*StudyLogModel, error) {
	rows, err := repo.Conn.QueryContext(ctx, `
SELECT id, user_id, activity, detail, "timestamp"
FROM user_log
WHERE user_id = $1
ORDER BY "timestamp" DESC
LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*StudyLogModel
	for rows.Next() {
		item := new(StudyLogModel)
		if err := rows.Scan(&item.ID, &item.UserID, &item.Activity, &item.Detail, &item.Timestamp); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, nil
}
