package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/yvod/yvod/internal/catalog"
	"github.com/yvod/yvod/internal/infrastructure/auth"
	"github.com/yvod/yvod/internal/media"
	"github.com/yvod/yvod/internal/study"
	"github.com/yvod/yvod/internal/unlock"
)

// ResourceHandler media byte delivery
type ResourceHandler struct {
	StudyUseCase  study.StudyUseCase
	JWTUtil       *auth.JWTUtil
	Media         *media.Streamer
	Cache         *media.Streamer // nil unless cache mode is on
	ForbiddenClip string
	HLSEnable     bool
}

// NewResourceHandler create a resource controller instance
func NewResourceHandler(
	StudyUseCase study.StudyUseCase,
	JWTUtil *auth.JWTUtil,
	Media *media.Streamer,
	Cache *media.Streamer,
	forbiddenClip string,
	hlsEnable bool,
) *ResourceHandler {
	return &ResourceHandler{
		StudyUseCase:  StudyUseCase,
		JWTUtil:       JWTUtil,
		Media:         Media,
		Cache:         Cache,
		ForbiddenClip: forbiddenClip,
		HLSEnable:     hlsEnable,
	}
}

// HandleStreamVideo byte endpoint, gated. Denial redirects to the
// placeholder clip so the player shows something instead of an error
func (rh *ResourceHandler) HandleStreamVideo(c echo.Context) error {
	if rh.HLSEnable {
		// cache mode delivers through the playlist URL only
		return c.NoContent(http.StatusForbidden)
	}
	learner := auth.ClaimedUser(rh.JWTUtil.GetContextToken(c))
	videoID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTStandardError(http.StatusBadRequest, "Video id must be an integer"))
	}

	video, err := rh.StudyUseCase.AuthorizeStream(c.Request().Context(), learner, videoID)
	if err != nil {
		switch {
		case errors.Is(err, unlock.ErrAccessDenied):
			return c.Redirect(http.StatusFound, "/resource/video/forbidden")
		case errors.Is(err, catalog.ErrVideoNotFound):
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}

	if err := rh.Media.Serve(c.Response(), c.Request(), video.FileName); err != nil {
		if errors.Is(err, media.ErrMediaNotFound) {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}
	return nil
}

// HandleForbiddenClip the placeholder clip, open to any signed-in client
func (rh *ResourceHandler) HandleForbiddenClip(c echo.Context) error {
	if err := rh.Media.Serve(c.Response(), c.Request(), rh.ForbiddenClip); err != nil {
		if errors.Is(err, media.ErrMediaNotFound) {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}
	return nil
}

// HandlePlaylist cache entry lookup by token. The token itself is the
// capability, it rotates daily
func (rh *ResourceHandler) HandlePlaylist(c echo.Context) error {
	if rh.Cache == nil {
		return c.NoContent(http.StatusNotFound)
	}
	if err := rh.Cache.Serve(c.Response(), c.Request(), c.Param("token")); err != nil {
		if errors.Is(err, media.ErrMediaNotFound) {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}
	return nil
}
