// Package issue defines audit findings and the report that collects them.
package issue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/715d/callaudit/pkg/calltree"
	"github.com/715d/callaudit/pkg/descriptor"
	"github.com/715d/callaudit/pkg/universe"
)

// ErrNoFixer is returned by Fix for issues whose rule has no fixer.
var ErrNoFixer = errors.New("descriptor has no fixer")

// Issue is one finding. Issues are not modified after creation.
type Issue struct {
	Descriptor  *descriptor.Descriptor
	Description string
	Category    Category
	// Location is nil when no source mapping is available.
	Location *universe.Location
	Assembly string
	Severity descriptor.Severity
	CallTree *calltree.Node
}

// Key identifies an issue across runs.
type Key struct {
	DescriptorID string
	Location     string
	Description  string
}

func (k Key) String() string {
	return k.DescriptorID + "|" + k.Location + "|" + k.Description
}

// DescriptorID returns the rule ID, or "".
func (i *Issue) DescriptorID() string {
	if i.Descriptor == nil {
		return ""
	}
	return i.Descriptor.ID
}

// Path returns the location path, or "".
func (i *Issue) Path() string {
	if i.Location == nil {
		return ""
	}
	return i.Location.Path
}

// Line returns the location line, or 0.
func (i *Issue) Line() int {
	if i.Location == nil {
		return 0
	}
	return i.Location.Line
}

// Filename returns the base name of the location path, or "".
func (i *Issue) Filename() string {
	return i.Location.Filename()
}

// Key returns the identity of the issue.
func (i *Issue) Key() Key {
	return Key{
		DescriptorID: i.DescriptorID(),
		Location:     i.Location.String(),
		Description:  i.Description,
	}
}

// Fingerprint returns a stable hash of Key.
func (i *Issue) Fingerprint() string {
	sum := sha256.Sum256([]byte(i.Key().String()))
	return hex.EncodeToString(sum[:12])
}

// IsHot reports whether the call tree reaches a hot entry point.
func (i *Issue) IsHot() bool {
	return i.CallTree != nil && i.CallTree.Hot
}

// Name returns a short display name: the callee, or the calling method when
// the callee name would only repeat the rule title.
func (i *Issue) Name() string {
	if i.CallTree == nil {
		return i.Description
	}
	name := i.CallTree.PrettyName()
	if i.Descriptor != nil && (name == i.Descriptor.Title || descriptor.UsageTitle(name) == i.Descriptor.Title) {
		if caller := i.CallTree.Caller(); caller != nil {
			return caller.PrettyName()
		}
	}
	return name
}

// CallingMethod returns "Type.Method" of the method that made the call.
func (i *Issue) CallingMethod() string {
	if i.CallTree == nil {
		return ""
	}
	return i.CallTree.Caller().PrettyName()
}

// Context returns the full name of the calling method, for example
// "System.Void MyClass::Dummy()".
func (i *Issue) Context() string {
	if i.CallTree == nil {
		return ""
	}
	if caller := i.CallTree.Caller(); caller != nil {
		return caller.Name
	}
	return ""
}

// Fix runs the rule's fixer on the issue.
func (i *Issue) Fix(ctx context.Context) error {
	if i.Descriptor == nil || i.Descriptor.Fixer == nil {
		return ErrNoFixer
	}
	return i.Descriptor.Fixer(ctx, i)
}

// Record is the serialized form of an issue.
type Record struct {
	DescriptorID string              `json:"descriptor_id"`
	Category     Category            `json:"category"`
	Description  string              `json:"description"`
	Severity     descriptor.Severity `json:"severity"`
	Location     *universe.Location  `json:"location,omitempty"`
	Assembly     string              `json:"assembly,omitempty"`
	Fingerprint  string              `json:"fingerprint"`
	CallTree     *calltree.Node      `json:"call_tree,omitempty"`
}

// Record returns the serialized form of the issue.
func (i *Issue) Record() Record {
	return Record{
		DescriptorID: i.DescriptorID(),
		Category:     i.Category,
		Description:  i.Description,
		Severity:     i.Severity,
		Location:     i.Location,
		Assembly:     i.Assembly,
		Fingerprint:  i.Fingerprint(),
		CallTree:     i.CallTree,
	}
}

func (i *Issue) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.Record())
}

func (i *Issue) String() string {
	s := i.DescriptorID() + " " + i.Description
	if i.Location != nil {
		s = i.Location.String() + ": " + s
	}
	if i.IsHot() {
		s += " (hot, severity " + i.Severity.String() + ")"
	} else {
		s += " (severity " + i.Severity.String() + ")"
	}
	return s
}
