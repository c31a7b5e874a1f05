package flowrepo

import (
	"errors"
	"time"
)

var ErrStateNotFound = errors.New("state not found")

// FlowState is what the console remembers between sending the user to the OAuth provider
// and receiving the callback.
type FlowState struct {
	CodeVerifier string
	ReturnURL    string
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(state string, flow *FlowState) error
	Get(state string) (*FlowState, error)
	Delete(state string) error
}
