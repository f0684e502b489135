package sequence

import "github.com/cockroachdb/errors"

// Error kinds. Every failure returned by this package is marked with exactly
// one of these, so callers branch with errors.Is.
var (
	ErrInvalidDefinition = errors.New("invalid sequence definition")
	ErrDuplicateName     = errors.New("duplicate sequence name")
	ErrNotFound          = errors.New("sequence not found")
	ErrLimitExceeded     = errors.New("sequence limit exceeded")
	ErrCurrValUndefined  = errors.New("currval undefined")
)

func invalidDefinition(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidDefinition)
}

func duplicateName(name string) error {
	return errors.Mark(errors.Newf("relation %q already exists", name), ErrDuplicateName)
}

// NotFoundError reports a sequence name that does not resolve in its scope.
func NotFoundError(name string) error {
	return errors.Mark(errors.Newf("relation %q does not exist", name), ErrNotFound)
}

func reachedMaximum(name string, max int64) error {
	return errors.Mark(
		errors.Newf("nextval: reached maximum value of sequence %q (%d)", name, max),
		ErrLimitExceeded,
	)
}

func reachedMinimum(name string, min int64) error {
	return errors.Mark(
		errors.Newf("nextval: reached minimum value of sequence %q (%d)", name, min),
		ErrLimitExceeded,
	)
}

func outOfBounds(name string, v, min, max int64) error {
	return errors.Mark(
		errors.Newf("setval: value %d is out of bounds for sequence %q (%d..%d)", v, name, min, max),
		ErrLimitExceeded,
	)
}

func currValUndefined(name string) error {
	return errors.Mark(
		errors.Newf("currval for sequence %q is undefined for this session", name),
		ErrCurrValUndefined,
	)
}
