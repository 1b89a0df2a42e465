package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/yvod/yvod/internal/catalog"
	"github.com/yvod/yvod/internal/infrastructure/logging"
	"github.com/yvod/yvod/internal/infrastructure/uuid"
	"go.uber.org/zap"
)

// HLSCache daily-rotating transcode cache. Each video owns one cache entry
// named by a random token; the token changes once per calendar day (at the
// configured UTC offset) so stale player URLs expire overnight
type HLSCache struct {
	Catalog   catalog.CatalogRepository
	UUIDGen   uuid.Generator
	SourceDir string
	CacheDir  string
	UTCOffset int

	now func() time.Time

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewHLSCache(
	Catalog catalog.CatalogRepository,
	UUIDGen uuid.Generator,
	sourceDir string,
	cacheDir string,
	utcOffset int,
) *HLSCache {
	return &HLSCache{
		Catalog:   Catalog,
		UUIDGen:   UUIDGen,
		SourceDir: sourceDir,
		CacheDir:  cacheDir,
		UTCOffset: utcOffset,
		now:       time.Now,
		locks:     make(map[int]*sync.Mutex),
	}
}

// PlaylistURL player-facing path for the video's current cache entry,
// refreshing the entry first when it is stale
func (hc *HLSCache) PlaylistURL(ctx context.Context, video *catalog.VideoModel) (string, error) {
	token, err := hc.EnsureFresh(ctx, video)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("/hls/%s/index.m3u8", token), nil
}

// EnsureFresh current cache token for the video, rotating the entry when the
// token is missing, dates from an earlier day or lost its backing file.
// Refreshes of the same video are serialized
func (hc *HLSCache) EnsureFresh(ctx context.Context, video *catalog.VideoModel) (string, error) {
	lock := hc.videoLock(video.ID)
	lock.Lock()
	defer lock.Unlock()

	if hc.entryValid(video) {
		return video.HLSToken, nil
	}
	return hc.refresh(ctx, video)
}

// EntryPath cache dir location of a token's entry
func (hc *HLSCache) EntryPath(token string) string {
	return filepath.Join(hc.CacheDir, filepath.Base(token))
}

func (hc *HLSCache) entryValid(video *catalog.VideoModel) bool {
	if video.HLSToken == "" || video.HLSRefreshedAt == nil {
		return false
	}
	if hc.dateAt(*video.HLSRefreshedAt) != hc.dateAt(hc.now()) {
		return false
	}
	if _, err := os.Stat(hc.EntryPath(video.HLSToken)); err != nil {
		return false
	}
	return true
}

func (hc *HLSCache) refresh(ctx context.Context, video *catalog.VideoModel) (string, error) {
	logger := logging.ExtractLoggerFromContext(ctx)

	token, err := hc.UUIDGen.Generate()
	if err != nil {
		return "", err
	}
	target := hc.EntryPath(token)

	// reuse yesterday's entry under the new name, transcode output is
	// immutable per source file
	moved := false
	if video.HLSToken != "" {
		if err := os.Rename(hc.EntryPath(video.HLSToken), target); err == nil {
			moved = true
		}
	}
	if !moved {
		source := filepath.Join(hc.SourceDir, filepath.Base(video.FileName))
		if err := copyFile(source, target); err != nil {
			if os.IsNotExist(err) {
				return "", ErrMediaNotFound
			}
			return "", err
		}
	}

	refreshedAt := hc.now().UTC()
	if err := hc.Catalog.UpdateVideoCache(ctx, video.ID, token, refreshedAt); err != nil {
		return "", err
	}
	video.HLSToken = token
	video.HLSRefreshedAt = &refreshedAt
	logger.Info("Rotated video cache entry",
		zap.Int("video.id", video.ID),
		zap.Bool("cache.moved", moved))
	return token, nil
}

// dateAt calendar date of t at the configured UTC offset
func (hc *HLSCache) dateAt(t time.Time) string {
	return t.UTC().Add(time.Duration(hc.UTCOffset) * time.Hour).Format("2006-01-02")
}

func (hc *HLSCache) videoLock(videoID int) *sync.Mutex {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	lock, ok := hc.locks[videoID]
	if !ok {
		lock = &sync.Mutex{}
		hc.locks[videoID] = lock
	}
	return lock
}

// copyFile entries are only ever observed complete: the copy lands on a
// temp file and is fsynced and renamed into place, an interrupted copy
// leaves nothing at the target path
func copyFile(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	pending, err := renameio.NewPendingFile(target)
	if err != nil {
		return err
	}
	defer pending.Cleanup()

	if _, err := io.Copy(pending, in); err != nil {
		return err
	}
	return pending.CloseAtomicallyReplace()
}
