package serial

import "github.com/rotisserie/eris"

var (
	ErrUnknownJSONKey        = eris.New("unknown json key")
	ErrJSONTypeMismatch      = eris.New("json type mismatch")
	ErrJSONArraySizeMismatch = eris.New("json array size mismatch")
)

// Severity classifies a read issue.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Issue is a non-fatal problem found while reading a document.
type Issue struct {
	Severity Severity
	Path     string
	Err      error
}

func (i Issue) String() string {
	return i.Severity.String() + " at " + i.Path + ": " + i.Err.Error()
}
