package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/yvod/yvod/internal/infrastructure/auth"
	"github.com/yvod/yvod/internal/infrastructure/driver"
	"github.com/yvod/yvod/internal/infrastructure/validate"
	"github.com/yvod/yvod/internal/user"
	"golang.org/x/crypto/bcrypt"
)

// UserHandler learner account operations
type UserHandler struct {
	JWTUtil        *auth.JWTUtil
	UserRepository user.UserRepository
	KVStore        driver.KeyValueDB
	UserUseCase    user.UserUseCase
	Validator      validate.Validator
	MaximumRetry   int
}

// NewUserHandler create an user controller instance
func NewUserHandler(
	JWTUtil *auth.JWTUtil,
	UserRepository user.UserRepository,
	KVStore driver.KeyValueDB,
	UserUseCase user.UserUseCase,
	MaximumRetry int,
	Validator validate.Validator,
) *UserHandler {
	return &UserHandler{
		JWTUtil:        JWTUtil,
		UserRepository: UserRepository,
		KVStore:        KVStore,
		UserUseCase:    UserUseCase,
		Validator:      Validator,
		MaximumRetry:   MaximumRetry,
	}
}

// HandleSignIn ...
func (uh *UserHandler) HandleSignIn(c echo.Context) (err error) {
	ju := uh.JWTUtil
	repo := uh.UserRepository

	post := new(user.UserModel)
	if err = c.Bind(&post); err != nil {
		return c.JSON(http.StatusUnprocessableEntity,
			NewRESTStandardError(http.StatusUnprocessableEntity, "Failed to bind user entity"))
	}
	post.Email = post.Username

	ctx := c.Request().Context()
	found, err := repo.FindByCredential(ctx, post)
	if err != nil {
		return err
	}
	if found == nil {
		return c.JSON(http.StatusUnauthorized, NewRESTStandardError(http.StatusUnauthorized, user.ErrNoSuchUser.Error()))
	}
	if found.LoginRetry >= uh.MaximumRetry {
		return c.JSON(http.StatusForbidden, NewRESTStandardError(http.StatusForbidden, user.ErrUserTooManyRetry.Error()))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(found.Password), []byte(post.Password)); err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			found.LoginRetry++
			repo.UpdateUser(ctx, found)
			return c.JSON(http.StatusUnauthorized, NewRESTStandardError(http.StatusUnauthorized, user.ErrNoSuchUser.Error()))
		}
		return err
	}

	// reset retry number
	found.LoginRetry = 0
	if err := repo.UpdateUser(ctx, found); err != nil {
		return err
	}
	tokenStr, err := ju.GenerateTokenStr(found)
	if err != nil {
		return err
	}
	ju.SetClientToken(c, tokenStr)

	found.Password = ""
	return c.JSON(http.StatusOK, found)
}

// HandleSignUp ...
func (uh *UserHandler) HandleSignUp(c echo.Context) (err error) {
	UserUseCase := uh.UserUseCase
	post := new(user.UserModel)

	if err = c.Bind(&post); err != nil {
		return c.JSON(http.StatusUnprocessableEntity,
			NewRESTStandardError(http.StatusUnprocessableEntity, "Failed to bind user entity"))
	}

	if fieldErrors := uh.Validator.Struct(post); fieldErrors != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "Failed to validate fields", fieldErrors))
	}

	// hash password
	if password, err := bcrypt.GenerateFromPassword([]byte(post.Password), bcrypt.DefaultCost); err == nil {
		post.Password = string(password)
	} else {
		return err
	}

	_, err = UserUseCase.SignUp(c.Request().Context(), post)
	if err != nil {
		if errors.Is(err, user.ErrDuplicatedUser) {
			return c.JSON(http.StatusConflict, NewRESTStandardError(http.StatusConflict, err.Error()))
		}
		return err
	}
	return c.NoContent(http.StatusCreated)
}

// HandleSignOut blacklist the session token for its remaining lifetime
func (uh *UserHandler) HandleSignOut(c echo.Context) (err error) {
	ju := uh.JWTUtil
	kv := uh.KVStore

	if tokenStr, err := ju.ExtractToken(c); err == nil {
		if token, err := ju.Validate(tokenStr); err == nil {
			ju.ClearClientToken(c)
			return kv.SetEX(tokenStr, "", token.TimeRemaining())
		}
		return c.NoContent(http.StatusUnauthorized)
	}
	return nil
}

// HandleUserExists ...
func (uh *UserHandler) HandleUserExists(c echo.Context) (err error) {
	UserUseCase := uh.UserUseCase
	post := new(user.UserModel)
	post.Username = c.QueryParam("username")
	post.Email = c.QueryParam("email")

	if fieldError := uh.Validator.AllEmpty([]string{"username", "email"}, post.Username, post.Email); fieldError != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "Failed to validate params", []*validate.FieldError{fieldError}))
	}

	existing, err := UserUseCase.Exists(c.Request().Context(), post)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, existing)
}
