// Style transfer: pretrained generator models wrapped as opaque inference
package style

import (
	"fmt"

	"artify/internal/raster"
)

// Engine runs one style-transfer inference. Implementations must be
// deterministic for a fixed (buffer, style) pair and safe for concurrent
// use across sessions. The production engine lives in the onnx subpackage;
// this package stays free of the OpenCV binding so the rest of the
// pipeline builds and tests without it.
type Engine interface {
	Infer(src *raster.Buffer, id ID) (*raster.Buffer, error)
}

// ID selects one of the supported pretrained styles. Each id maps 1:1 to a
// generator checkpoint.
type ID string

const (
	Monet   ID = "monet"
	VanGogh ID = "vangogh"
	Cezanne ID = "cezanne"
	Ukiyoe  ID = "ukiyoe"
)

// All lists the supported styles in presentation order.
func All() []ID {
	return []ID{Monet, VanGogh, Cezanne, Ukiyoe}
}

// Parse validates a user-supplied style name.
func Parse(name string) (ID, error) {
	id := ID(name)
	for _, known := range All() {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown style: %q", name)
}

// ModelUnavailableError means the weights for a style could not be located
// or loaded. The failure is remembered per process: the style stays
// unavailable until the weights are fixed and the process restarts.
type ModelUnavailableError struct {
	Style ID
	Path  string
	Err   error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("style model %q unavailable (%s): %v", e.Style, e.Path, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// InferenceError is a runtime failure inside the model. It is not
// retryable: the same input is expected to fail the same way.
type InferenceError struct {
	Style ID
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed for style %q: %v", e.Style, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
