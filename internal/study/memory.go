package study

import (
	"context"
	"sync"

	"github.com/yvod/yvod/internal/infrastructure/driver"
)

// MemoryStudyLogRepository slice-backed StudyLogRepository for tests and
// local development without a database
type MemoryStudyLogRepository struct {
	mu      sync.Mutex
	nextID  int
	entries []*StudyLogModel
}

var _ StudyLogRepository = &MemoryStudyLogRepository{}

func NewMemoryStudyLogRepository() *MemoryStudyLogRepository {
	return &MemoryStudyLogRepository{nextID: 1}
}

// WithConn no-op, the store has no connection to rebind
func (repo *MemoryStudyLogRepository) WithConn(conn driver.ITransactionalDB) StudyLogRepository {
	return repo
}

func (repo *MemoryStudyLogRepository) Append(ctx context.Context, entry *StudyLogModel) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	copied := *entry
	copied.ID = repo.nextID
	repo.nextID++
	repo.entries = append(repo.entries, &copied)
	return nil
}

func (repo *MemoryStudyLogRepository) GetByUser(ctx context.Context, userID string, limit int) ([]*StudyLogModel, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	var result []*StudyLogModel
	for i := len(repo.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if repo.entries[i].UserID == userID {
			copied := *repo.entries[i]
			result = append(result, &copied)
		}
	}
	return result, nil
}
