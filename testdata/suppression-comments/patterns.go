package suppress

import (
	"reflect"
	"regexp"
)

//nolint:callaudit // compiled once
func Pattern() *regexp.Regexp {
	return regexp.MustCompile(`\d+`)
}

//lint:ignore callaudit startup only
func Other() *regexp.Regexp {
	return regexp.MustCompile(`\w+`)
}

//nolint:gocritic
func Unrelated() *regexp.Regexp {
	return regexp.MustCompile(`\s+`)
}

//nolint
func All() string {
	return reflect.TypeOf(0).Name()
}

func Checked() string {
	return reflect.TypeOf("").Name()
}
