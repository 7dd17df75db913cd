package util

import "errors"

var (
	ErrNoExtractableText = errors.New("no extractable text")
	ErrUnsupportedType   = errors.New("unsupported content type")
)
