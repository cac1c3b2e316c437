package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/graybeam/relaypoint/internal/model"
)

// AccessTokenHeader carries the access token issued by Login.
const AccessTokenHeader = "Access-Token"

type UserService interface {
	Register(params *model.CreateUserParams) (*model.User, error)
	Login(username model.Username, password string) (string, error)
	Authenticate(token string) (model.Username, error)
	AddFriend(username, friend model.Username) error
	Friends(username model.Username) ([]model.Friend, error)
}

// Authenticated wraps a handler with access-token resolution.
func Authenticated(userService UserService, next func(c echo.Context, username model.Username) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		username, err := userService.Authenticate(c.Request().Header.Get(AccessTokenHeader))
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired access token")
		}
		return next(c, username)
	}
}

func CreateUser(userService UserService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &model.CreateUserParams{}
		if err := c.Bind(params); err != nil {
			return err
		}
		if params.Username == "" || params.Password == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
		}

		user, err := userService.Register(params)
		if err != nil {
			if errors.Is(err, model.ErrorUserExists) {
				return echo.NewHTTPError(http.StatusConflict, "username already taken")
			}
			return err
		}
		return c.JSON(http.StatusOK, user)
	}
}

func Login(userService UserService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &model.LoginParams{}
		if err := c.Bind(params); err != nil {
			return err
		}
		if params.Username == "" || params.Password == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
		}

		token, err := userService.Login(model.Username(params.Username), params.Password)
		if err != nil {
			if errors.Is(err, model.ErrorInvalidUsernameOrPassword) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
			}
			return err
		}
		return c.JSON(http.StatusOK, map[string]string{"accessToken": token})
	}
}

func GetFriends(userService UserService) echo.HandlerFunc {
	return Authenticated(userService, func(c echo.Context, username model.Username) error {
		friends, err := userService.Friends(username)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string][]model.Friend{"friends": friends})
	})
}

func AddFriend(userService UserService) echo.HandlerFunc {
	return Authenticated(userService, func(c echo.Context, username model.Username) error {
		params := struct {
			Username string `json:"username" form:"username"`
		}{}
		if err := c.Bind(&params); err != nil {
			return err
		}
		if params.Username == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "username is required")
		}

		if err := userService.AddFriend(username, model.Username(params.Username)); err != nil {
			if errors.Is(err, model.ErrorUserNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "no such user")
			}
			return err
		}
		return c.NoContent(http.StatusNoContent)
	})
}
