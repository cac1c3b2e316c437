package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/graybeam/relaypoint/internal/model"
	"github.com/graybeam/relaypoint/internal/service/chat"
)

type ChatService interface {
	Send(sender, recipient model.Username, body string, file *chat.Attachment) (model.DeliveryOutcome, error)
	Poll(ctx context.Context, recipient model.Username, maxWait time.Duration) ([]*model.Message, error)
}

type FileStore interface {
	Open(name string) (*os.File, string, error)
}

func SendMessage(userService UserService, chatService ChatService) echo.HandlerFunc {
	return Authenticated(userService, func(c echo.Context, sender model.Username) error {
		receiver := model.Username(c.FormValue("receiver"))
		if receiver == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "receiver is required")
		}
		body := c.FormValue("message")

		var attachment *chat.Attachment
		if header, err := c.FormFile("file"); err == nil && header.Size > 0 {
			upload, err := header.Open()
			if err != nil {
				return fmt.Errorf("opening upload: %w", err)
			}
			defer upload.Close()
			attachment = &chat.Attachment{Filename: header.Filename, Content: upload}
		}

		if body == "" && attachment == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "message content or file is required")
		}

		outcome, err := chatService.Send(sender, receiver, body, attachment)
		if err != nil {
			if errors.Is(err, model.ErrorNotPermitted) {
				return echo.NewHTTPError(http.StatusForbidden, "sender not in receiver's friend list")
			}
			if errors.Is(err, model.ErrorPersistence) {
				return echo.NewHTTPError(http.StatusInternalServerError, "error sending message")
			}
			return err
		}

		status := "queued"
		if outcome == model.DeliveryLive {
			status = "delivered"
		}
		return c.JSON(http.StatusOK, map[string]string{"status": status})
	})
}

// GetNewMessages is the long-poll endpoint: it suspends for up to maxWait and
// always answers, possibly with an empty array.
func GetNewMessages(userService UserService, chatService ChatService, maxWait time.Duration) echo.HandlerFunc {
	return Authenticated(userService, func(c echo.Context, username model.Username) error {
		messages, err := chatService.Poll(c.Request().Context(), username, maxWait)
		if err != nil {
			if c.Request().Context().Err() != nil {
				// client gone, nothing left to answer
				return nil
			}
			return err
		}
		if messages == nil {
			messages = []*model.Message{}
		}
		return c.JSON(http.StatusOK, messages)
	})
}

func DownloadFile(userService UserService, files FileStore) echo.HandlerFunc {
	return Authenticated(userService, func(c echo.Context, _ model.Username) error {
		name := c.Param("name")

		f, contentType, err := files.Open(name)
		if err != nil {
			if errors.Is(err, model.ErrorFileNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "no such file")
			}
			return echo.NewHTTPError(http.StatusBadRequest, "invalid file name")
		}
		defer f.Close()

		// the stored object name is «uuid»_«original», serve the original
		downloadName := name
		if _, original, found := strings.Cut(name, "_"); found {
			downloadName = original
		}
		c.Response().Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf("attachment; filename=%q", downloadName))
		return c.Stream(http.StatusOK, contentType, f)
	})
}
