package analyzer

import "fmt"

// ErrMissingExtension is returned when computing an extension whose
// dependency has not been computed on the analyzer yet.
type ErrMissingExtension struct {
	// Name is the extension being computed.
	Name string
	// Needs is the missing dependency. Alternations keep their raw
	// "a|b" form: any one of them would have satisfied the dependency.
	Needs string
}

func (e *ErrMissingExtension) Error() string {
	return fmt.Sprintf("extension %q needs %q computed first", e.Name, e.Needs)
}

// ErrUnknownExtension is returned when an extension name has no
// registered factory.
type ErrUnknownExtension struct {
	Name  string
	Known []string
}

func (e *ErrUnknownExtension) Error() string {
	return fmt.Sprintf("unknown extension %q (known: %v)", e.Name, e.Known)
}

// ErrDuplicateExtension is returned when registering a name twice in the
// same registry.
type ErrDuplicateExtension struct {
	Name string
}

func (e *ErrDuplicateExtension) Error() string {
	return fmt.Sprintf("extension %q already registered", e.Name)
}
