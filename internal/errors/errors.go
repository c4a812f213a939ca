package errors

import "errors"

// ErrNotFound is returned by the issue store when a document does not exist.
// Rejections from the validation pipeline are the typed errors in rejection.go;
// this sentinel is for plain lookup misses.
var ErrNotFound = errors.New("resource not found")
