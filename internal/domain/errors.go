package domain

import "errors"

var (
	// ErrNotFound: the requested stored resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExtractionEmpty: a PDF yielded no usable text or chunks.
	ErrExtractionEmpty = errors.New("no usable text extracted")

	// ErrAnswerUnavailable: retrieval produced no relevant context for a
	// question.
	ErrAnswerUnavailable = errors.New("answer unavailable from stored rules")
)
