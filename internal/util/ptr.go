package util

func StringPtr(v string) *string { return &v }

func IntPtr(v int) *int { return &v }

func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// DerefOr renders a missing value as fallback.
func DerefOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}
