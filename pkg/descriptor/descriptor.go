// Package descriptor defines audit rules and the registry that indexes them
// by exact symbol and by namespace wildcard.
package descriptor

import (
	"context"
	"fmt"
	"strings"
)

// Wildcard is the member name of a rule that covers a whole namespace.
const Wildcard = "*"

// Area is the part of the product a problem affects.
type Area string

const (
	AreaCPU         Area = "CPU"
	AreaGPU         Area = "GPU"
	AreaMemory      Area = "Memory"
	AreaBuildSize   Area = "BuildSize"
	AreaLoadTime    Area = "LoadTime"
	AreaQuality     Area = "Quality"
	AreaRequirement Area = "Requirement"
)

// Severity ranks how urgent an issue is.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityMinor
	SeverityModerate
	SeverityMajor
	SeverityCritical
)

var severityNames = [...]string{"info", "minor", "moderate", "major", "critical"}

func (s Severity) String() string {
	if s < SeverityInfo || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// Escalate returns the next severity up, saturating at critical.
func (s Severity) Escalate() Severity {
	if s >= SeverityCritical {
		return SeverityCritical
	}
	return s + 1
}

// ParseSeverity parses a severity name, case-insensitively.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if strings.EqualFold(n, name) {
			return Severity(i), nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// FixTarget is the issue a fixer is applied to.
type FixTarget interface {
	DescriptorID() string
	Path() string
	Line() int
}

// Fixer repairs the cause of an issue. It is bound to descriptors but only
// ever invoked on demand for a reported issue.
type Fixer func(ctx context.Context, target FixTarget) error

// Descriptor is an audit rule. Type and Method name the target symbol; a rule
// with Method set to Wildcard matches any member of any type in the
// namespace named by Type.
type Descriptor struct {
	ID       string
	Type     string
	Method   string
	Title    string
	Areas    []Area
	Severity Severity
	Problem  string
	Solution string
	Fixer    Fixer
}

// IsWildcard reports whether the rule covers a whole namespace.
func (d *Descriptor) IsWildcard() bool {
	return d.Method == Wildcard
}

// Symbol returns "Type.Method", or the namespace for wildcard rules.
func (d *Descriptor) Symbol() string {
	if d.IsWildcard() {
		return d.Type + "." + Wildcard
	}
	return d.Type + "." + NormalizeMember(d.Method)
}

func (d *Descriptor) String() string {
	return d.ID + " " + d.Symbol()
}

// UsageTitle formats the default issue description for a symbol.
func UsageTitle(symbol string) string {
	return "'" + symbol + "' usage"
}

// NormalizeMember maps property getter accessors to the property name:
// "get_allCameras" is matched as "allCameras".
func NormalizeMember(member string) string {
	if len(member) > len("get_") && strings.HasPrefix(member, "get_") {
		return member[len("get_"):]
	}
	return member
}
