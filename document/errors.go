package document

import "fmt"

// ConfigError reports a document that could be read but is
// malformed or does not have the expected shape.
type ConfigError struct {
	// Path is the file the document came from, if any.
	Path string
	// Err is the underlying cause.
	Err error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid document: %v", e.Err)
	}

	return fmt.Sprintf("invalid document %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IOError reports a failure to read or write a document file.
type IOError struct {
	// Op is "read" or "write".
	Op string
	// Path is the file being accessed.
	Path string
	// Err is the underlying cause.
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
