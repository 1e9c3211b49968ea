package docstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Kind classifies a RemoteError.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindPermission
	KindUnavailable
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindPermission:
		return "permission"
	case KindUnavailable:
		return "unavailable"
	case KindInvalid:
		return "invalid"
	}
	return "unknown"
}

// ErrNotFound matches every RemoteError of KindNotFound via errors.Is.
var ErrNotFound = errors.New("docstore: not found")

// ErrPermission matches every RemoteError of KindPermission via errors.Is.
var ErrPermission = errors.New("docstore: permission denied")

// RemoteError is returned by every failing Client call.
type RemoteError struct {
	Op         string
	Collection string
	ID         string
	Kind       Kind
	Err        error
}

func (e *RemoteError) Error() string {
	target := e.Collection
	if e.ID != "" {
		target += "/" + e.ID
	}
	if e.Err == nil {
		return fmt.Sprintf("docstore %s %s: %s", e.Op, target, e.Kind)
	}
	return fmt.Sprintf("docstore %s %s: %s: %v", e.Op, target, e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) and errors.Is(err, ErrPermission) work.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrPermission:
		return e.Kind == KindPermission
	}
	return false
}

// KindOf returns the kind of the RemoteError inside err, or KindUnknown.
func KindOf(err error) Kind {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err is a not-found RemoteError.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Wrap turns err into a RemoteError for op on collection/id, classifying it.
// A nil err stays nil and an existing RemoteError is returned unchanged.
func Wrap(op, collection, id string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return &RemoteError{Op: op, Collection: collection, ID: id, Kind: classify(err), Err: err}
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindUnavailable
	case errors.Is(err, fs.ErrPermission):
		return KindPermission
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "readonly"), strings.Contains(msg, "permission denied"), strings.Contains(msg, "access denied"):
		return KindPermission
	case strings.Contains(msg, "busy"), strings.Contains(msg, "locked"), strings.Contains(msg, "connection"), strings.Contains(msg, "closed"):
		return KindUnavailable
	case strings.Contains(msg, "constraint"), strings.Contains(msg, "invalid"):
		return KindInvalid
	}
	return KindUnknown
}
