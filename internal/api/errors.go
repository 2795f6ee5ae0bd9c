package api

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrModelNotFound  = errors.New("model_not_found")
)

type requestError struct {
	msg  string
	kind error
}

func (e requestError) Error() string {
	return e.msg
}

func (e requestError) Unwrap() error {
	return e.kind
}

func newInvalidRequest(msg string) error {
	return requestError{msg: msg, kind: ErrInvalidRequest}
}

func newModelNotFound(msg string) error {
	return requestError{msg: msg, kind: ErrModelNotFound}
}
