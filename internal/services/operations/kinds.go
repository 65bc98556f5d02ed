package operations

import (
	"errors"
	"fmt"
)

// Kind names an operation a session can start
type Kind string

const (
	KindExportModule   Kind = "export-module"
	KindDeleteModule   Kind = "delete-module"
	KindPublishProject Kind = "publish-project"
)

// ErrUnknownKind is returned for an operation kind that is not defined
var ErrUnknownKind = errors.New("unknown operation kind")

// Kinds lists every operation kind
var Kinds = []Kind{KindExportModule, KindDeleteModule, KindPublishProject}

// ParseKind validates a kind string
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Key returns the registry key for an operation on target. Two requests for
// the same kind and target share a key and so never run concurrently.
func Key(kind Kind, target string) string {
	switch kind {
	case KindExportModule:
		return "export:" + target
	case KindDeleteModule:
		return "delete:" + target
	case KindPublishProject:
		return "publish:" + target
	}
	return string(kind) + ":" + target
}
