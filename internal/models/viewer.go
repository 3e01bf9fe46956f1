package models

// Viewer is the identity attached to an incoming request.
// The zero value is an anonymous viewer.
type Viewer struct {
	Authenticated bool
	Subject       string
	DisplayName   string
	Email         string
}

// Name returns the best human-readable label for the viewer.
func (v Viewer) Name() string {
	switch {
	case v.DisplayName != "":
		return v.DisplayName
	case v.Email != "":
		return v.Email
	default:
		return v.Subject
	}
}
