// Package gate implements the scan-status publish gate: publish runs when
// the scan came back clean, or when it reported findings and the configured
// severity filter is in the tolerated set. A scanner error is never
// proceedable.
package gate

import (
	"strings"

	"github.com/spf13/cast"
	"github.com/thoas/go-funk"
)

// Status is the closed interpretation of a scanner exit code.
type Status int

const (
	//Clean no findings, exit code 0
	Clean Status = iota
	//Findings findings present, exit code 1
	Findings
	//Error the tool itself failed, exit code >= 2
	Error
)

// ScanStatus keeps the original numeric exit code alongside the enum.
type ScanStatus struct {
	Status Status
	Code   int
}

// FromExitCode maps a scanner exit code onto the closed enum.
func FromExitCode(code int) ScanStatus {
	switch {
	case code == 0:
		return ScanStatus{Status: Clean, Code: code}
	case code == 1:
		return ScanStatus{Status: Findings, Code: code}
	default:
		return ScanStatus{Status: Error, Code: code}
	}
}

// FromValue parses a state value ("0", "1", 2, ...) into a ScanStatus. A
// value that does not parse as an exit code reads as Error, so a corrupted
// scan status can never open the gate.
func FromValue(v interface{}) ScanStatus {
	code, err := cast.ToIntE(v)
	if err != nil {
		return ScanStatus{Status: Error, Code: -1}
	}
	return FromExitCode(code)
}

func (s ScanStatus) String() string {
	switch s.Status {
	case Clean:
		return "CLEAN"
	case Findings:
		return "FINDINGS"
	default:
		return "ERROR"
	}
}

// CanProceed decides whether a publish-type stage may run:
// clean always proceeds; findings proceed only when the severity filter is
// tolerated; a tool error never proceeds regardless of configuration.
func CanProceed(s ScanStatus, severityFilter string, tolerated []string) bool {
	if s.Status == Clean {
		return true
	}
	if s.Status == Findings {
		return Tolerated(severityFilter, tolerated)
	}
	return false
}

// Tolerated reports whether the severity filter is a member of the
// configured tolerated set. Matching is case-insensitive on the full filter
// string ("LOW,MEDIUM" is one entry, not two).
func Tolerated(severityFilter string, tolerated []string) bool {
	normalized := funk.Map(tolerated, func(s string) string {
		return strings.ToUpper(strings.TrimSpace(s))
	}).([]string)
	return funk.ContainsString(normalized, strings.ToUpper(strings.TrimSpace(severityFilter)))
}
