package vcs

// unwrapper is implemented by backend decorators.
type unwrapper interface {
	Unwrap() Backend
}

// Find walks the decorator chain starting at b and returns the first
// backend implementing T.
func Find[T any](b Backend) (T, bool) {
	for b != nil {
		if v, ok := b.(T); ok {
			return v, true
		}
		u, ok := b.(unwrapper)
		if !ok {
			break
		}
		b = u.Unwrap()
	}
	var zero T
	return zero, false
}
