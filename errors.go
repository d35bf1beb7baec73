package unstamp

import (
	"errors"
	"fmt"
)

// Error kinds. Returned errors wrap one of these so callers can classify
// failures with [errors.Is].
var (
	// ErrIO reports a missing or unreadable input, or an unwritable output.
	ErrIO = errors.New("i/o error")
	// ErrDecode reports input bytes that are not a recognized image encoding.
	ErrDecode = errors.New("decode error")
	// ErrInvalidArgument reports malformed parameters such as thresholds or dimensions.
	ErrInvalidArgument = errors.New("invalid argument")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}
