package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/graybeam/relaypoint/internal/model"
)

const bcryptCost = 10

// Database is the account and friend-list storage the service runs on.
type Database interface {
	CreateUser(user *model.User) error
	FetchUser(username model.Username) (*model.User, error)
	AddFriend(owner, friend model.Username) error
	Friends(username model.Username) ([]model.Username, error)
	IsFriend(owner, candidate model.Username) (bool, error)
}

// Presence reports whether a user currently has a poll in flight.
type Presence interface {
	IsEngaged(user model.Username) bool
}

type service struct {
	db          Database
	presence    Presence
	tokenSecret []byte
	tokenTTL    time.Duration
}

func New(db Database, presence Presence, tokenSecret string, tokenTTL time.Duration) *service {
	return &service{
		db:          db,
		presence:    presence,
		tokenSecret: []byte(tokenSecret),
		tokenTTL:    tokenTTL,
	}
}

func (s *service) Register(params *model.CreateUserParams) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("generating encoded password: %w", err)
	}

	user := &model.User{
		Username:  model.Username(params.Username),
		CreatedAt: time.Now().UTC(),
		Password:  string(hash),
	}
	if err := s.db.CreateUser(user); err != nil {
		return nil, err
	}

	return user, nil
}

// Login verifies the credentials and issues a signed access token. Unknown
// user and wrong password are indistinguishable to the caller.
func (s *service) Login(username model.Username, password string) (string, error) {
	user, err := s.db.FetchUser(username)
	if err != nil {
		if errors.Is(err, model.ErrorUserNotFound) {
			return "", model.ErrorInvalidUsernameOrPassword
		}
		return "", fmt.Errorf("fetching user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return "", model.ErrorInvalidUsernameOrPassword
	}

	now := time.Now()
	claims := jwt.StandardClaims{
		Subject:   string(username),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.tokenTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.tokenSecret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}

	return signed, nil
}

// Authenticate resolves an access token back to its user. Expired or
// tampered tokens fail with model.ErrorInvalidToken.
func (s *service) Authenticate(tokenString string) (model.Username, error) {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.tokenSecret, nil
	})
	if err != nil || !token.Valid {
		return "", model.ErrorInvalidToken
	}
	return model.Username(claims.Subject), nil
}

// AddFriend puts friend on username's list, which permits friend to send to
// username.
func (s *service) AddFriend(username, friend model.Username) error {
	return s.db.AddFriend(username, friend)
}

// Friends returns the user's friend list with live presence flags.
func (s *service) Friends(username model.Username) ([]model.Friend, error) {
	names, err := s.db.Friends(username)
	if err != nil {
		return nil, fmt.Errorf("fetching friends: %w", err)
	}

	friends := make([]model.Friend, 0, len(names))
	for _, name := range names {
		friends = append(friends, model.Friend{
			Username: name,
			Online:   s.presence.IsEngaged(name),
		})
	}
	return friends, nil
}

// IsPermittedSender reports whether sender appears in recipient's friend
// list. This is the authorisation gate on the send path.
func (s *service) IsPermittedSender(sender, recipient model.Username) (bool, error) {
	return s.db.IsFriend(recipient, sender)
}
