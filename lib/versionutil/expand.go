package versionutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrCrossMajor = errors.New("kubernetes version ranges cannot span major versions")

type ExpandMode string

const (
	// ExpandRollover wraps the minor label from 9 back to 0 while keeping the
	// major label, ("1.9", "1.11") gives ["1.9", "1.0", "1.1"]. existing
	// compatibility datasets were generated this way.
	ExpandRollover ExpandMode = "rollover"
	// ExpandContinuous counts minors the way kubernetes actually numbers them.
	ExpandContinuous ExpandMode = "continuous"
)

func ParseExpandMode(s string) (ExpandMode, error) {
	switch ExpandMode(s) {
	case "", ExpandRollover:
		return ExpandRollover, nil
	case ExpandContinuous:
		return ExpandContinuous, nil
	}
	return "", fmt.Errorf("unknown expand mode %q", s)
}

func parseMinor(s string) (int, int, error) {
	majorStr, minorStr, ok := strings.Cut(strings.TrimPrefix(strings.TrimSpace(s), "v"), ".")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q is not <major>.<minor>", ErrInvalidVersion, s)
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	return major, minor, nil
}

// ExpandKubeVersions lists every kubernetes minor version from start to end
// (both inclusive) in ascending order. when end comes before start the
// result only holds start.
func ExpandKubeVersions(start, end string, mode ExpandMode) ([]string, error) {
	startMajor, startMinor, err := parseMinor(start)
	if err != nil {
		return nil, err
	}
	endMajor, endMinor, err := parseMinor(end)
	if err != nil {
		return nil, err
	}

	first := fmt.Sprintf("%d.%d", startMajor, startMinor)
	if endMajor < startMajor || (endMajor == startMajor && endMinor <= startMinor) {
		return []string{first}, nil
	}
	if endMajor != startMajor {
		return nil, fmt.Errorf("%w: %s -> %s", ErrCrossMajor, start, end)
	}

	out := []string{first}
	label := startMinor
	for step := startMinor; step < endMinor; step++ {
		if mode == ExpandRollover && label == 9 {
			label = 0
		} else {
			label++
		}
		out = append(out, fmt.Sprintf("%d.%d", startMajor, label))
	}
	return out, nil
}
