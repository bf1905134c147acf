// Package services defines the read-side business logic over stored tweets.
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

// ErrInvalidID is returned when a tweet identifier cannot be parsed.
var ErrInvalidID = errors.New("invalid tweet id")
