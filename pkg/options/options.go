// Package options defines the generic options interface and common utilities.
package options

import (
	"errors"
	"strings"

	"github.com/spf13/pflag"
)

// Join concatenates prefixes with "." separator.
// If the result is non-empty, it appends a trailing ".".
// Prefixes that already end with "." are not doubled.
func Join(prefixes ...string) string {
	parts := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.Trim(p, "."); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ".") + "."
}

// IOptions defines methods to implement a generic options.
type IOptions interface {
	// Validate validates all the required options.
	Validate() []error

	// AddFlags adds flags related to given flagset.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// Aggregate folds the validation errors of several option groups into one error.
func Aggregate(groups ...[]error) error {
	var all []error
	for _, g := range groups {
		all = append(all, g...)
	}
	return errors.Join(all...)
}
