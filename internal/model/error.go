package model

import "errors"

var ErrorInvalidUsernameOrPassword = errors.New("invalid username or password")
var ErrorInvalidToken = errors.New("invalid or expired access token")
var ErrorUserNotFound = errors.New("user not found")
var ErrorUserExists = errors.New("user already exists")
var ErrorNotPermitted = errors.New("sender not in recipient's friend list")
var ErrorAlreadyWaiting = errors.New("a poll is already outstanding for this recipient")
var ErrorPersistence = errors.New("writing to the message log failed")
var ErrorFileNotFound = errors.New("file not found")
