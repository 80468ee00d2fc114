package database

import "errors"

var (
	errInvalidPoolConfig   = errors.New("database: max idle conns cannot exceed max open conns")
	errInvalidMaxOpenConns = errors.New("database: max open conns must be at least 1")
)
