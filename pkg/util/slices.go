package util

func InPlaceFilter[T any](s *[]T, p func(T) bool) {
	i := 0
	for _, e := range *s {
		if p(e) {
			(*s)[i] = e
			i++
		}
	}
	*s = (*s)[:i]
}

func Ptr[T any](v T) *T {
	return &v
}

// IntOrZero dereferences an optional time, treating unknown as zero.
func IntOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
