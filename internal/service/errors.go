package service

import "errors"

var (
	// ErrEmptyQuery is returned when a search request has no query text
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrEmptyURL is returned when a request has no URL
	ErrEmptyURL = errors.New("url must not be empty")
)
