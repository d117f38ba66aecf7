package model

// ErrorKind is the closed set of failures surfaced to the user.
type ErrorKind string

const (
	ErrorNone     ErrorKind = ""
	ErrorRequired ErrorKind = "required"
	ErrorNotURL   ErrorKind = "notUrl"
	ErrorExists   ErrorKind = "exists"
	ErrorRSS      ErrorKind = "rss"
	ErrorNetwork  ErrorKind = "network"
	ErrorUnknown  ErrorKind = "unknown"
)

// MessageKey returns the localization key for the kind.
// Unlisted values fall back to errors.unknown.
func (k ErrorKind) MessageKey() string {
	switch k {
	case ErrorRequired:
		return "errors.required"
	case ErrorNotURL:
		return "errors.notUrl"
	case ErrorExists:
		return "errors.exists"
	case ErrorRSS:
		return "errors.rss"
	case ErrorNetwork:
		return "errors.network"
	default:
		return "errors.unknown"
	}
}

// IsValidation reports whether the kind comes from form validation.
func (k ErrorKind) IsValidation() bool {
	return k == ErrorRequired || k == ErrorNotURL || k == ErrorExists
}
