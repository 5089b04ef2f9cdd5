package rules

import "errors"

// ErrDuplicatePackage is returned in strict mode when two package-scope
// annotations share one package path.
var ErrDuplicatePackage = errors.New("duplicate package annotation")

// Options controls how annotation records are reshaped.
type Options struct {
	// Sort orders rules by package title, then source file, then row.
	Sort bool
	// Strict turns duplicate package annotations into an error.
	Strict bool
}

type Diagnostics struct {
	Warnings []string
}

func (d *Diagnostics) warn(msg string) {
	d.Warnings = append(d.Warnings, msg)
}
