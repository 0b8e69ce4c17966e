package issue

import (
	"cmp"
	"encoding/json"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
)

// Report collects issues in per-category buckets. Modules writing different
// categories never contend; all methods are safe for concurrent use.
type Report struct {
	runID      string
	buckets    *xsync.Map[Category, *bucket]
	incomplete *xsync.Map[Category, struct{}]
}

type bucket struct {
	mu     sync.Mutex
	issues []*Issue
}

// NewReport creates an empty report with a fresh run ID.
func NewReport() *Report {
	return &Report{
		runID:      uuid.NewString(),
		buckets:    xsync.NewMap[Category, *bucket](),
		incomplete: xsync.NewMap[Category, struct{}](),
	}
}

// RunID identifies the audit run that produced the report.
func (r *Report) RunID() string { return r.runID }

func (r *Report) bucketFor(c Category) *bucket {
	if b, ok := r.buckets.Load(c); ok {
		return b
	}
	b, _ := r.buckets.LoadOrStore(c, &bucket{})
	return b
}

// Add appends one issue.
func (r *Report) Add(i *Issue) {
	b := r.bucketFor(i.Category)
	b.mu.Lock()
	b.issues = append(b.issues, i)
	b.mu.Unlock()
}

// AddBatch appends issues. The category of an empty batch is not recorded.
func (r *Report) AddBatch(issues []*Issue) {
	for len(issues) > 0 {
		c := issues[0].Category
		n := 1
		for n < len(issues) && issues[n].Category == c {
			n++
		}
		b := r.bucketFor(c)
		b.mu.Lock()
		b.issues = append(b.issues, issues[:n]...)
		b.mu.Unlock()
		issues = issues[n:]
	}
}

// Touch marks category c as analyzed even if it has no issues.
func (r *Report) Touch(c Category) {
	r.bucketFor(c)
}

// ClearCategory drops every issue of category c and leaves the other
// categories alone.
func (r *Report) ClearCategory(c Category) {
	r.buckets.Delete(c)
	r.incomplete.Delete(c)
}

// HasCategory reports whether category c was analyzed.
func (r *Report) HasCategory(c Category) bool {
	_, ok := r.buckets.Load(c)
	return ok
}

// ByCategory returns the issues of category c in insertion order.
func (r *Report) ByCategory(c Category) []*Issue {
	b, ok := r.buckets.Load(c)
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.issues)
}

// Categories returns the analyzed categories in ascending order.
func (r *Report) Categories() []Category {
	var out []Category
	r.buckets.Range(func(c Category, _ *bucket) bool {
		out = append(out, c)
		return true
	})
	slices.Sort(out)
	return out
}

// Len returns the total number of issues.
func (r *Report) Len() int {
	n := 0
	r.buckets.Range(func(_ Category, b *bucket) bool {
		b.mu.Lock()
		n += len(b.issues)
		b.mu.Unlock()
		return true
	})
	return n
}

// All returns every issue sorted by category, location, rule and
// description, so equal inputs give equal output regardless of emission
// order.
func (r *Report) All() []*Issue {
	var out []*Issue
	for _, c := range r.Categories() {
		out = append(out, r.ByCategory(c)...)
	}
	slices.SortStableFunc(out, Compare)
	return out
}

// Compare orders issues for display.
func Compare(a, b *Issue) int {
	return cmp.Or(
		cmp.Compare(a.Category, b.Category),
		strings.Compare(a.Path(), b.Path()),
		cmp.Compare(a.Line(), b.Line()),
		strings.Compare(a.DescriptorID(), b.DescriptorID()),
		strings.Compare(a.Description, b.Description),
		strings.Compare(a.Assembly, b.Assembly),
	)
}

// MarkIncomplete flags category c as the result of a cancelled or failed
// run. Clearing the category removes the flag.
func (r *Report) MarkIncomplete(c Category) {
	r.incomplete.Store(c, struct{}{})
}

// Complete reports whether category c was produced by a completed run.
func (r *Report) Complete(c Category) bool {
	_, bad := r.incomplete.Load(c)
	return !bad
}

// Authoritative reports whether every category was produced by a completed
// run.
func (r *Report) Authoritative() bool {
	return r.incomplete.Size() == 0
}

type reportJSON struct {
	RunID         string   `json:"run_id"`
	Authoritative bool     `json:"authoritative"`
	Issues        []*Issue `json:"issues"`
}

func (r *Report) MarshalJSON() ([]byte, error) {
	issues := r.All()
	if issues == nil {
		issues = []*Issue{}
	}
	return json.Marshal(reportJSON{
		RunID:         r.runID,
		Authoritative: r.Authoritative(),
		Issues:        issues,
	})
}
