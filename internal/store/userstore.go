package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path"

	"github.com/graybeam/relaypoint/internal/model"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// UserStore keeps accounts and the per-user friend lists. Friendship is
// directional: a row (Username, Friend) means Friend appears in Username's
// list and is therefore allowed to message them.
type UserStore struct {
	db *sqlx.DB
}

func NewUserStore(config Config) (*UserStore, error) {
	dbName := path.Join(config.DataDirectory(), "users.db")

	db, err := sqlx.Connect("sqlite3", "file:"+dbName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	userStore := &UserStore{db}
	if err := userStore.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return userStore, nil
}

func (s *UserStore) Close() error {
	return s.db.Close()
}

func (s *UserStore) createTables() error {
	_, err := s.db.Exec(`create table if not exists user(
		Username  text not null primary key,
		CreatedAt DATETIME not null,
		Password  text not null
	)`)
	if err != nil {
		return fmt.Errorf("creating user table: %w", err)
	}

	_, err = s.db.Exec(`create table if not exists friend(
		Username text not null,
		Friend   text not null,
		primary key (Username, Friend)
	)`)
	if err != nil {
		return fmt.Errorf("creating friend table: %w", err)
	}

	return nil
}

func (s *UserStore) CreateUser(user *model.User) error {
	res, err := s.db.NamedExec(`insert or ignore into user
		(Username, CreatedAt, Password)
		values(:Username, :CreatedAt, :Password)`, user)

	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	if rows, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	} else if rows != 1 {
		return model.ErrorUserExists
	}

	return nil
}

func (s *UserStore) FetchUser(username model.Username) (*model.User, error) {
	user := &model.User{}
	err := s.db.Get(user, `select * from user where Username = ?`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrorUserNotFound
		}
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	return user, nil
}

// AddFriend puts friend on owner's list, permitting friend to message owner.
func (s *UserStore) AddFriend(owner, friend model.Username) error {
	if _, err := s.FetchUser(friend); err != nil {
		return err
	}
	_, err := s.db.Exec(`insert or ignore into friend(Username, Friend) values(?, ?)`,
		owner, friend)
	if err != nil {
		return fmt.Errorf("inserting friend: %w", err)
	}
	return nil
}

func (s *UserStore) Friends(username model.Username) ([]model.Username, error) {
	friends := []model.Username{}
	err := s.db.Select(&friends,
		`select Friend from friend where Username = ? order by Friend`, username)
	if err != nil {
		return nil, fmt.Errorf("selecting friends: %w", err)
	}
	return friends, nil
}

// IsFriend reports whether candidate appears in owner's friend list.
func (s *UserStore) IsFriend(owner, candidate model.Username) (bool, error) {
	var count int
	err := s.db.Get(&count,
		`select count(*) from friend where Username = ? and Friend = ?`,
		owner, candidate)
	if err != nil {
		return false, fmt.Errorf("checking friendship: %w", err)
	}
	return count > 0, nil
}
