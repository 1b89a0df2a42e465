package http

import (
	"github.com/labstack/echo/v4"
	infra "github.com/yvod/yvod/internal/infrastructure"
)

func v1Endpoint(
	UserHandler *UserHandler,
	StudyHandler *StudyHandler,
	jwtMiddleware echo.MiddlewareFunc,
	refreshMiddleware echo.MiddlewareFunc,
	requestIDMiddleware echo.MiddlewareFunc,
	traceLoggerMiddleware echo.MiddlewareFunc,
) *endpoint {
	return &endpoint{
		apiVersion:  "api/v1",
		middlewares: []echo.MiddlewareFunc{requestIDMiddleware, traceLoggerMiddleware},
		groups: []*apiGroup{
			{
				prefix: "/user",
				routes: []*route{
					{"POST", "/login", UserHandler.HandleSignIn, nil},
					{"PUT", "/sign-out", UserHandler.HandleSignOut, nil},
					{"POST", "/sign-up", UserHandler.HandleSignUp, nil},
					{"GET", "/exists", UserHandler.HandleUserExists, nil},
				},
			},
			{
				prefix:      "/study",
				middlewares: []echo.MiddlewareFunc{jwtMiddleware, refreshMiddleware},
				routes: []*route{
					{"POST", "/punch/:id", StudyHandler.HandlePunch, nil},
					{"GET", "/video/:id", StudyHandler.HandleGetVideo, nil},
				},
			},
			{
				prefix:      "/ws",
				middlewares: []echo.MiddlewareFunc{jwtMiddleware},
				routes: []*route{
					{"GET", "/status", infra.WithHeartbeat(StudyHandler.StatusFeed), nil},
				},
			},
		},
	}
}

func resourceEndpoint(
	ResourceHandler *ResourceHandler,
	jwtMiddleware echo.MiddlewareFunc,
	requestIDMiddleware echo.MiddlewareFunc,
	traceLoggerMiddleware echo.MiddlewareFunc,
) *endpoint {
	return &endpoint{
		apiVersion:  "resource",
		middlewares: []echo.MiddlewareFunc{requestIDMiddleware, traceLoggerMiddleware},
		groups: []*apiGroup{
			{
				prefix: "/video",
				routes: []*route{
					{"GET", "/forbidden", ResourceHandler.HandleForbiddenClip, nil},
					{"GET", "/:id", ResourceHandler.HandleStreamVideo, []echo.MiddlewareFunc{jwtMiddleware}},
				},
			},
		},
	}
}

// hlsEndpoint the rotating token is the capability, no session middleware
func hlsEndpoint(ResourceHandler *ResourceHandler) *endpoint {
	return &endpoint{
		apiVersion: "hls",
		groups: []*apiGroup{
			{
				routes: []*route{
					{"GET", "/:token/index.m3u8", ResourceHandler.HandlePlaylist, nil},
				},
			},
		},
	}
}
