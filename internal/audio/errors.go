package audio

import "errors"

var (
	// ErrDecode is matched by every decode failure.
	ErrDecode = errors.New("decode failed")

	// ErrEncode is matched by every lossy encode failure, including an
	// unsupported bitrate.
	ErrEncode = errors.New("encode failed")
)

// DecodeError records the file that could not be decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return "decode " + e.Path + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// EncodeError records which encode step failed.
type EncodeError struct {
	Op  string
	Err error
}

func (e *EncodeError) Error() string {
	return "encode: " + e.Op + ": " + e.Err.Error()
}

func (e *EncodeError) Unwrap() error { return e.Err }

func (e *EncodeError) Is(target error) bool { return target == ErrEncode }
