package contract

import "errors"

// ErrRecordNotFound is returned by writes whose parent record does not exist.
var ErrRecordNotFound = errors.New("record not found")
