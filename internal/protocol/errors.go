package protocol

import "errors"

var (
	ErrBadSignature     = errors.New("protocol: bad frame signature")
	ErrTruncated        = errors.New("protocol: truncated frame")
	ErrBadLength        = errors.New("protocol: malformed field length")
	ErrFieldTooLong     = errors.New("protocol: field exceeds length limit")
	ErrMissingDelimiter = errors.New("protocol: missing field delimiter")
	ErrBadKind          = errors.New("protocol: unknown response kind")
	ErrBadCount         = errors.New("protocol: array count mismatch")
	ErrShortFrame       = errors.New("protocol: too few fields for frame kind")
)

// IsFrameError reports whether err marks malformed frame content, as opposed
// to a transport failure surfaced while reading.
func IsFrameError(err error) bool {
	for _, sentinel := range []error{
		ErrBadSignature,
		ErrBadLength,
		ErrFieldTooLong,
		ErrMissingDelimiter,
		ErrBadKind,
		ErrBadCount,
		ErrShortFrame,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
