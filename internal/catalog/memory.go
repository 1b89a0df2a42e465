package catalog

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryCatalogRepository map-backed CatalogRepository for the higher layer
// tests and local development without a database
type MemoryCatalogRepository struct {
	mu      sync.Mutex
	lessons map[int]*LessonModel
	videos  map[int]*VideoModel
}

var _ CatalogRepository = &MemoryCatalogRepository{}

func NewMemoryCatalogRepository() *MemoryCatalogRepository {
	return &MemoryCatalogRepository{
		lessons: make(map[int]*LessonModel),
		videos:  make(map[int]*VideoModel),
	}
}

// AddLesson register a lesson and its videos, wiring the back references
func (repo *MemoryCatalogRepository) AddLesson(lesson *LessonModel) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.lessons[lesson.ID] = lesson
	for _, v := range lesson.Videos {
		v.LessonID = lesson.ID
		v.Lesson = lesson
		repo.videos[v.ID] = v
	}
}

func (repo *MemoryCatalogRepository) GetVideoByID(ctx context.Context, id int) (*VideoModel, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if v, ok := repo.videos[id]; ok {
		return v, nil
	}
	return nil, ErrVideoNotFound
}

func (repo *MemoryCatalogRepository) GetLessonByID(ctx context.Context, id int) (*LessonModel, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if l, ok := repo.lessons[id]; ok {
		return l, nil
	}
	return nil, ErrLessonNotFound
}

func (repo *MemoryCatalogRepository) GetLessonsByType(ctx context.Context, typeID int) ([]*LessonModel, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	var result []*LessonModel
	for _, l := range repo.lessons {
		if l.TypeID == typeID {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (repo *MemoryCatalogRepository) UpdateVideoCache(ctx context.Context, videoID int, token string, refreshedAt time.Time) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	v, ok := repo.videos[videoID]
	if !ok {
		return ErrVideoNotFound
	}
	v.HLSToken = token
	at := refreshedAt
	v.HLSRefreshedAt = &at
	return nil
}
