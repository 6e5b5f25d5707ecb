package authorization

import (
	"context"
	"errors"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

// Actor is the identity supplied by the upstream authenticating proxy.
type Actor struct {
	Role string
	ID   string
}

// Subject is the casbin subject, e.g. "partner:1790...".
func (a Actor) Subject() string {
	if a.ID == "" {
		return a.Role
	}
	return a.Role + ":" + a.ID
}

type Service interface {
	Authorize(ctx context.Context, actor Actor, object string, action string) error
}
