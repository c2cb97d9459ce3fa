package payroll

import (
	"strings"

	"github.com/teranos/paysync/errors"
)

// Mode selects what a run extracts
type Mode string

const (
	// ModeProfile loads one employee snapshot per load day
	ModeProfile Mode = "profile"
	// ModeCheck loads every line of every paycheck
	ModeCheck Mode = "check"
)

var modeAliases = map[string]Mode{
	"profile": ModeProfile,
	"details": ModeProfile,
	"check":   ModeCheck,
	"checks":  ModeCheck,
}

// ParseMode accepts profile or check, plus the legacy names details and checks
func ParseMode(s string) (Mode, error) {
	if m, ok := modeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return "", errors.WithHint(
		errors.Wrapf(errors.ErrInvalidMode, "%q", s),
		"use one of: profile, check (legacy: details, checks)",
	)
}

func (m Mode) String() string { return string(m) }
