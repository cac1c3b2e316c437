package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graybeam/relaypoint/internal/delivery"
	"github.com/graybeam/relaypoint/internal/handlers"
	"github.com/graybeam/relaypoint/internal/model"
	"github.com/graybeam/relaypoint/internal/service/chat"
	"github.com/graybeam/relaypoint/internal/service/user"
	"github.com/graybeam/relaypoint/internal/store"
)

type dirConfig string

func (d dirConfig) DataDirectory() string {
	return string(d)
}

func newServer(t *testing.T) *echo.Echo {
	t.Helper()

	messageLog, err := store.NewMessageLog(dirConfig(t.TempDir()))
	require.Nil(t, err)
	t.Cleanup(func() { messageLog.Close() })

	userStore, err := store.NewUserStore(dirConfig(t.TempDir()))
	require.Nil(t, err)
	t.Cleanup(func() { userStore.Close() })

	blobStore, err := store.NewBlobStore(t.TempDir())
	require.Nil(t, err)

	mailboxes := delivery.NewMailboxStore()
	presence := delivery.NewPresenceRegistry()
	waiters := delivery.NewWaiterRegistry()

	userService := user.New(userStore, presence, "test-secret", time.Hour)
	chatService := chat.New(userService, messageLog, blobStore, mailboxes, presence, waiters)

	server := echo.New()
	server.POST("/api/users", handlers.CreateUser(userService))
	server.POST("/api/login", handlers.Login(userService))
	server.GET("/api/friends", handlers.GetFriends(userService))
	server.POST("/api/friends", handlers.AddFriend(userService))
	server.POST("/api/send-message", handlers.SendMessage(userService, chatService))
	server.GET("/api/get-new-messages", handlers.GetNewMessages(userService, chatService, 300*time.Millisecond))
	server.GET("/api/files/:name", handlers.DownloadFile(userService, blobStore))

	return server
}

func doJSON(server *echo.Echo, method, target, token string, payload any) *httptest.ResponseRecorder {
	var body io.Reader
	if payload != nil {
		encoded, _ := json.Marshal(payload)
		body = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(handlers.AccessTokenHeader, token)
	}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func doForm(server *echo.Echo, target, token string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set(handlers.AccessTokenHeader, token)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, server *echo.Echo, username, password string) string {
	t.Helper()
	rec := doJSON(server, http.MethodPost, "/api/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string]string
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &response))
	return response["accessToken"]
}

func TestChatHandlers(t *testing.T) {
	assert := assert.New(t)

	server := newServer(t)

	for _, name := range []string{"alice", "bob"} {
		rec := doJSON(server, http.MethodPost, "/api/users", "", map[string]string{
			"username": name,
			"password": name + "-password",
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	aliceToken := login(t, server, "alice", "alice-password")
	bobToken := login(t, server, "bob", "bob-password")

	t.Run("requests without a token are rejected", func(t *testing.T) {
		rec := doJSON(server, http.MethodGet, "/api/friends", "", nil)
		assert.Equal(http.StatusUnauthorized, rec.Code)
	})

	t.Run("befriending permits sending", func(t *testing.T) {
		// alice is not yet on bob's list
		rec := doForm(server, "/api/send-message", aliceToken, url.Values{
			"receiver": {"bob"},
			"message":  {"hi"},
		})
		assert.Equal(http.StatusForbidden, rec.Code)

		rec = doJSON(server, http.MethodPost, "/api/friends", bobToken, map[string]string{
			"username": "alice",
		})
		assert.Equal(http.StatusNoContent, rec.Code)

		rec = doForm(server, "/api/send-message", aliceToken, url.Values{
			"receiver": {"bob"},
			"message":  {"hi"},
		})
		assert.Equal(http.StatusOK, rec.Code)
		assert.JSONEq(`{"status":"queued"}`, rec.Body.String())
	})

	t.Run("queued message is returned on check-in", func(t *testing.T) {
		rec := doJSON(server, http.MethodGet, "/api/get-new-messages", bobToken, nil)
		assert.Equal(http.StatusOK, rec.Code)

		var messages []*model.Message
		require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &messages))
		require.Len(t, messages, 1)
		assert.Equal("hi", messages[0].Body)
		assert.Equal(model.Username("alice"), messages[0].Sender)
	})

	t.Run("empty poll answers with an empty array", func(t *testing.T) {
		start := time.Now()
		rec := doJSON(server, http.MethodGet, "/api/get-new-messages", bobToken, nil)
		assert.Equal(http.StatusOK, rec.Code)
		assert.JSONEq(`[]`, rec.Body.String())
		assert.GreaterOrEqual(time.Since(start), 300*time.Millisecond)
	})

	t.Run("missing content is rejected", func(t *testing.T) {
		rec := doForm(server, "/api/send-message", aliceToken, url.Values{
			"receiver": {"bob"},
		})
		assert.Equal(http.StatusBadRequest, rec.Code)
	})

	t.Run("file upload and download round trip", func(t *testing.T) {
		var buf bytes.Buffer
		form := multipart.NewWriter(&buf)
		require.Nil(t, form.WriteField("receiver", "bob"))
		part, err := form.CreateFormFile("file", "notes.txt")
		require.Nil(t, err)
		_, err = part.Write([]byte("attachment body"))
		require.Nil(t, err)
		require.Nil(t, form.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/send-message", &buf)
		req.Header.Set(echo.HeaderContentType, form.FormDataContentType())
		req.Header.Set(handlers.AccessTokenHeader, aliceToken)
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		pollRec := doJSON(server, http.MethodGet, "/api/get-new-messages", bobToken, nil)
		require.Equal(t, http.StatusOK, pollRec.Code)

		var messages []*model.Message
		require.Nil(t, json.Unmarshal(pollRec.Body.Bytes(), &messages))
		require.Len(t, messages, 1)
		assert.Equal(model.FileBody, messages[0].Body)
		require.NotEmpty(t, messages[0].FileLink)

		downloadRec := doJSON(server, http.MethodGet, messages[0].FileLink, bobToken, nil)
		assert.Equal(http.StatusOK, downloadRec.Code)
		assert.Equal("attachment body", downloadRec.Body.String())
		assert.Contains(downloadRec.Header().Get(echo.HeaderContentDisposition), "notes.txt")
	})

	t.Run("download requires authentication", func(t *testing.T) {
		rec := doJSON(server, http.MethodGet, "/api/files/anything", "", nil)
		assert.Equal(http.StatusUnauthorized, rec.Code)
	})
}
