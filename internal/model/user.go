package model

import "time"

type Username string

type User struct {
	Username  Username  `db:"Username" json:"username"`
	CreatedAt time.Time `db:"CreatedAt" json:"createdAt"`
	Password  string    `db:"Password" json:"-"`
}

type CreateUserParams struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type LoginParams struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Friend is a friend-list entry enriched with live presence.
type Friend struct {
	Username Username `json:"username"`
	Online   bool     `json:"online"`
}
