package main

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// unset reports whether a positional argument was left for the config to
// fill. "#" is accepted as an explicit placeholder.
func unset(arg string) bool {
	arg = strings.TrimSpace(arg)
	return arg == "" || arg == "#"
}

// parseTolerance parses the tolerance argument, falling back to def.
func parseTolerance(arg string, def float64) (float64, error) {
	if unset(arg) {
		return def, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
	if err != nil {
		return 0, eris.Errorf("tolerance %q is not a number", arg)
	}
	return v, nil
}

// parseCleanup reads the optional clean-up argument at args[i].
func parseCleanup(args []string, i int, def bool) (bool, error) {
	if len(args) <= i || unset(args[i]) {
		return def, nil
	}
	switch strings.ToUpper(strings.TrimSpace(args[i])) {
	case "CLEANUP", "DELETE", "YES", "Y":
		return true, nil
	case "NO_CLEANUP", "KEEP", "NO", "N":
		return false, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(args[i]))
	if err != nil {
		return false, eris.Errorf("clean-up flag %q is not a boolean", args[i])
	}
	return v, nil
}

// splitFields splits a field list separated by semicolons, commas or spaces.
func splitFields(arg string) []string {
	return strings.FieldsFunc(arg, func(r rune) bool {
		return r == ';' || r == ',' || r == ' '
	})
}

func orDefault(arg, def string) string {
	if unset(arg) {
		return def
	}
	return arg
}
