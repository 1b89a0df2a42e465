package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yvod/yvod/internal/infrastructure/driver"
)

type punchKey struct {
	userID  string
	videoID int
}

// MemoryPunchRepository map-backed PunchRepository, used by the higher layer
// tests and by local development without a database
type MemoryPunchRepository struct {
	mu sync.Mutex

	HighWaterMark bool

	nextID        int
	punches       map[punchKey]*PunchModel
	videoLessons  map[int]int // video id -> lesson id
}

var _ PunchRepository = &MemoryPunchRepository{}

func NewMemoryPunchRepository(highWaterMark bool) *MemoryPunchRepository {
	return &MemoryPunchRepository{
		HighWaterMark: highWaterMark,
		nextID:        1,
		punches:       make(map[punchKey]*PunchModel),
		videoLessons:  make(map[int]int),
	}
}

// RegisterVideo declare the lesson a video belongs to, backing GetByUserLesson
func (repo *MemoryPunchRepository) RegisterVideo(videoID, lessonID int) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	repo.videoLessons[videoID] = lessonID
}

// WithConn no-op, the store has no connection to rebind
func (repo *MemoryPunchRepository) WithConn(conn driver.ITransactionalDB) PunchRepository {
	return repo
}

func (repo *MemoryPunchRepository) UpsertWatchTime(ctx context.Context, userID string, videoID int, playTime time.Duration) (*PunchModel, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	now := time.Now().UTC()
	key := punchKey{userID, videoID}
	if existing, ok := repo.punches[key]; ok {
		if repo.HighWaterMark && playTime < existing.PlayTime {
			playTime = existing.PlayTime
		}
		existing.PlayTime = playTime
		existing.Timestamp = &now
		return clonePunch(existing), nil
	}

	item := &PunchModel{
		ID:        repo.nextID,
		UserID:    userID,
		VideoID:   videoID,
		PlayTime:  playTime,
		Timestamp: &now,
	}
	repo.nextID++
	repo.punches[key] = item
	return clonePunch(item), nil
}

func (repo *MemoryPunchRepository) GetByUserVideo(ctx context.Context, userID string, videoID int) (*PunchModel, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if item, ok := repo.punches[punchKey{userID, videoID}]; ok {
		return clonePunch(item), nil
	}
	return nil, nil
}

func (repo *MemoryPunchRepository) GetByUserLesson(ctx context.Context, userID string, lessonID int) ([]*PunchModel, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	var result []*PunchModel
	for key, item := range repo.punches {
		if key.userID != userID {
			continue
		}
		if repo.videoLessons[key.videoID] != lessonID {
			continue
		}
		result = append(result, clonePunch(item))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].VideoID < result[j].VideoID })
	return result, nil
}

func (repo *MemoryPunchRepository) MarkSynchronized(ctx context.Context, userID string, videoIDs []int) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	now := time.Now().UTC()
	for _, id := range videoIDs {
		if item, ok := repo.punches[punchKey{userID, id}]; ok {
			item.Synced = true
			item.Timestamp = &now
		}
	}
	return nil
}

func (repo *MemoryPunchRepository) GetActiveUserIDsSince(ctx context.Context, since time.Time) ([]string, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	seen := make(map[string]bool)
	for key, item := range repo.punches {
		if item.Timestamp != nil && !item.Timestamp.Before(since) {
			seen[key.userID] = true
		}
	}
	result := make([]string, 0, len(seen))
	for id := range seen {
		result = append(result, id)
	}
	sort.Strings(result)
	return result, nil
}

func clonePunch(item *PunchModel) *PunchModel {
	copied := *item
	return &copied
}
