package user

import (
	"context"

	"github.com/go-sql-driver/mysql"
	"github.com/yvod/yvod/internal/infrastructure/driver"
	"github.com/yvod/yvod/internal/infrastructure/uuid"
)

type UserRepositoryImpl struct {
	Conn          driver.ITransactionalDB
	UUIDGenerator uuid.Generator
}

var _ UserRepository = &UserRepositoryImpl{}

func NewUserRepository(Conn driver.ITransactionalDB, UUIDGenerator uuid.Generator) *UserRepositoryImpl {
	return &UserRepositoryImpl{
		Conn:          Conn,
		UUIDGenerator: UUIDGenerator,
	}
}

// FindByCredential query user with provided credential
func (repo *UserRepositoryImpl) FindByCredential(ctx context.Context, post *UserModel) (*UserModel, error) {
	conn := repo.Conn
	row, err := conn.QueryContext(ctx, `
SELECT id, username, password, email, coordinator, login_retry
FROM "user"
WHERE username = $1 OR email = $2
	`, post.Username, post.Email)
	if err != nil {
		return nil, err
	}
	defer row.Close()

	if row.Next() {
		found := new(UserModel)
		if err := row.Scan(&found.ID, &found.Username, &found.Password, &found.Email,
			&found.Coordinator, &found.LoginRetry); err != nil {
			return nil, err
		}
		return found, nil
	}
	return nil, nil
}

func (repo *UserRepositoryImpl) SaveUser(ctx context.Context, post *UserModel) error {
	conn := repo.Conn
	// generate id
	UUIDGenerator := repo.UUIDGenerator
	if uid, err := UUIDGenerator.Generate(); err == nil {
		post.ID = uid
	} else {
		return err
	}

	_, err := conn.ExecContext(ctx, `
INSERT INTO "user"(id, username, password, email)
VALUES($1, $2, $3, $4)
	`, post.ID, post.Username, post.Password, post.Email)

	if err, ok := err.(*mysql.MySQLError); ok && err.Number == 1062 {
		return ErrDuplicatedUser
	}
	return err
}

func (repo *UserRepositoryImpl) UpdateUser(ctx context.Context, post *UserModel) error {
	conn := repo.Conn
	_, err := conn.ExecContext(ctx, `
UPDATE "user"
SET email = $1,
    login_retry = $2
WHERE id = $3
	`, post.Email, post.LoginRetry, post.ID)
	return err
}
