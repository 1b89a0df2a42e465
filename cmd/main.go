package main

import (
	"log"

	"github.com/yvod/yvod/internal/catalog"
	infra "github.com/yvod/yvod/internal/infrastructure"
	"github.com/yvod/yvod/internal/infrastructure/driver"
	"github.com/yvod/yvod/internal/infrastructure/logging"
	"github.com/yvod/yvod/internal/infrastructure/uuid"
	ihttp "github.com/yvod/yvod/internal/interfaces/http"
	"github.com/yvod/yvod/internal/media"
	"github.com/yvod/yvod/internal/progress"
	"github.com/yvod/yvod/internal/study"
	"github.com/yvod/yvod/internal/unlock"
	"github.com/yvod/yvod/internal/user"
	"github.com/yvod/yvod/internal/ysync"
	"go.uber.org/zap"
)

func main() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
	option, err := infra.InitConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		FilePath: option.Logging.FilePath,
		Level:    option.Logging.Level,
		AppID:    option.AppID,
		Env:      option.Env,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %s\n", err)
	}
	logger = logger.With(
		zap.String("service.id", option.AppID),
	)
	defer logger.Sync()

	dbConn, err := driver.GetDBConnection(&driver.DBConfig{
		User:     option.Database.User,
		Password: option.Database.Password,
		MaxConn:  option.Database.MaxConn,
		Protocol: option.Database.Protocol,
		Driver:   option.Database.Driver,
		Host:     option.Database.Host,
		Port:     option.Database.Port,
		Query:    option.Database.Query,
		Schema:   option.Database.Schema,
	})
	if err != nil {
		log.Fatalf("Failed to create DB connection: %s\n", err)
	}
	logger.Debug("Create db connection instance", zap.String("db.driver", option.Database.Driver),
		zap.String("db.schema", option.Database.Schema),
		zap.String("db.host", option.Database.Host),
	)

	rdb := driver.NewRedisClient(option.KVStore.Host, option.KVStore.Port, option.KVStore.Password)

	UUIDGenerator := uuid.NewNanoIDGenerator(option.Security.IDLength)
	UserRepo := user.NewUserRepository(dbConn, UUIDGenerator)
	UserUseCase := user.NewUserUseCase(UserRepo)

	CatalogRepo := catalog.NewCatalogRepository(dbConn)
	PunchRepo := progress.NewPunchRepository(dbConn, option.Progress.HighWaterMark)
	StudyLogRepo := study.NewStudyLogRepository(dbConn)
	Calculator := progress.NewCalculator(PunchRepo)
	Policy := unlock.NewPolicy(CatalogRepo, Calculator)
	Bridge := ysync.NewBridge(
		option.Sync.BaseURL,
		option.Sync.Secret,
		option.Sync.TokenTTL,
		option.Sync.Timeout,
		PunchRepo,
		Calculator,
	)

	var HLSCache *media.HLSCache
	if option.Video.HLSEnable {
		HLSCache = media.NewHLSCache(
			CatalogRepo,
			UUIDGenerator,
			option.Video.Dir,
			option.Video.HLSDir,
			option.Video.UTCOffset,
		)
	}
	StudyUseCase := study.NewStudyUseCase(
		dbConn,
		CatalogRepo,
		PunchRepo,
		StudyLogRepo,
		Calculator,
		Policy,
		Bridge,
		HLSCache,
		option.Progress.StatusWindow,
	)

	ihttp.Serve(dbConn, rdb, option, UserUseCase, UserRepo, StudyUseCase, logger)
}
