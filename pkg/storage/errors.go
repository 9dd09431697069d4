package storage

import "errors"

var (
	ErrCreate      = errors.New("create error")
	ErrUpdate      = errors.New("update error")
	ErrDelete      = errors.New("delete error")
	ErrUnsupported = errors.New("unsupported storage type")
)
