package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/yvod/yvod/internal/catalog"
	"github.com/yvod/yvod/internal/infrastructure/auth"
	"github.com/yvod/yvod/internal/infrastructure/validate"
	"github.com/yvod/yvod/internal/study"
	"github.com/yvod/yvod/internal/unlock"
)

// StudyHandler progress reporting and player metadata
type StudyHandler struct {
	StudyUseCase study.StudyUseCase
	JWTUtil      *auth.JWTUtil
	Validator    validate.Validator
}

// NewStudyHandler create a study controller instance
func NewStudyHandler(
	StudyUseCase study.StudyUseCase,
	JWTUtil *auth.JWTUtil,
	Validator validate.Validator,
) *StudyHandler {
	return &StudyHandler{
		StudyUseCase: StudyUseCase,
		JWTUtil:      JWTUtil,
		Validator:    Validator,
	}
}

type punchRequest struct {
	// seconds, pointer to tell a missing field from a zero report
	PlayTime *float64 `json:"play_time" validate:"required,gte=0"`
}

// HandlePunch one playback progress report for the video in the path
func (sh *StudyHandler) HandlePunch(c echo.Context) error {
	learner := auth.ClaimedUser(sh.JWTUtil.GetContextToken(c))
	videoID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTStandardError(http.StatusBadRequest, "Video id must be an integer"))
	}

	post := new(punchRequest)
	if err := c.Bind(post); err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTStandardError(http.StatusBadRequest, "Failed to bind punch body"))
	}
	if fieldErrors := sh.Validator.Struct(post); fieldErrors != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "Failed to validate fields", fieldErrors))
	}

	playTime := time.Duration(*post.PlayTime * float64(time.Second))
	result, err := sh.StudyUseCase.RecordPlayback(c.Request().Context(), learner, videoID, playTime)
	if err != nil {
		switch {
		case errors.Is(err, unlock.ErrAccessDenied):
			return c.JSON(http.StatusForbidden, NewRESTStandardError(http.StatusForbidden, err.Error()))
		case errors.Is(err, catalog.ErrVideoNotFound):
			return c.JSON(http.StatusNotFound, NewRESTStandardError(http.StatusNotFound, err.Error()))
		case errors.Is(err, study.ErrInvalidPlayTime):
			return c.JSON(http.StatusBadRequest, NewRESTStandardError(http.StatusBadRequest, err.Error()))
		}
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// HandleGetVideo player metadata, gated like playback
func (sh *StudyHandler) HandleGetVideo(c echo.Context) error {
	learner := auth.ClaimedUser(sh.JWTUtil.GetContextToken(c))
	videoID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTStandardError(http.StatusBadRequest, "Video id must be an integer"))
	}

	detail, err := sh.StudyUseCase.GetVideoDetail(c.Request().Context(), learner, videoID)
	if err != nil {
		switch {
		case errors.Is(err, unlock.ErrAccessDenied):
			return c.JSON(http.StatusForbidden, NewRESTStandardError(http.StatusForbidden, err.Error()))
		case errors.Is(err, catalog.ErrVideoNotFound):
			return c.JSON(http.StatusNotFound, NewRESTStandardError(http.StatusNotFound, err.Error()))
		}
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

// statusQueryTimeout bounds the repository call behind one feed frame, the
// socket carries no request context to inherit a deadline from
const statusQueryTimeout = 10 * time.Second

// StatusFeed one frame of currently studying learners per client message
func (sh *StudyHandler) StatusFeed(conn *websocket.Conn) error {
	if _, _, err := conn.ReadMessage(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), statusQueryTimeout)
	defer cancel()

	ids, err := sh.StudyUseCase.ActiveLearnerIDs(ctx)
	if err != nil {
		return err
	}
	return conn.WriteJSON(map[string]interface{}{"active": ids})
}
