package audit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/715d/callaudit/pkg/descriptor"
	"github.com/715d/callaudit/pkg/issue"
	"github.com/715d/callaudit/pkg/universe"
)

// DefaultLargeFileThreshold is the size above which non-code files are
// reported.
const DefaultLargeFileThreshold = 1 << 20

var errCancelled = errors.New("cancelled")

var (
	largeFileDescriptor = descriptor.Descriptor{
		ID:       "CAA0001",
		Type:     "asset",
		Method:   "size",
		Title:    "Large file",
		Areas:    []descriptor.Area{descriptor.AreaBuildSize},
		Severity: descriptor.SeverityMinor,
		Problem:  "Large files checked into the module are downloaded by every consumer of the module.",
		Solution: "Move the file out of the module or fetch it at build time.",
	}
	resourcesDescriptor = descriptor.Descriptor{
		ID:       "CAA0002",
		Type:     "asset",
		Method:   "resources",
		Title:    "Resources folder",
		Areas:    []descriptor.Area{descriptor.AreaBuildSize, descriptor.AreaLoadTime},
		Severity: descriptor.SeverityModerate,
		Problem:  "Everything under a Resources folder is packaged into the build whether it is referenced or not.",
		Solution: "Load content on demand instead of placing it in a Resources folder.",
	}
)

// AssetsModuleOptions configures the assets module.
type AssetsModuleOptions struct {
	// LargeFileThreshold in bytes. Zero uses DefaultLargeFileThreshold.
	LargeFileThreshold int64
	// SkipDirs are directory names never descended into.
	SkipDirs []string
}

// AssetsModule reports large non-code files and resources folders.
type AssetsModule struct {
	registry *descriptor.Registry
	opts     AssetsModuleOptions
}

// NewAssetsModule creates the assets module.
func NewAssetsModule(opts AssetsModuleOptions) (*AssetsModule, error) {
	if opts.LargeFileThreshold <= 0 {
		opts.LargeFileThreshold = DefaultLargeFileThreshold
	}
	if opts.SkipDirs == nil {
		opts.SkipDirs = []string{".git", "vendor", "node_modules"}
	}
	reg := descriptor.NewRegistry()
	if err := reg.RegisterAll([]descriptor.Descriptor{largeFileDescriptor, resourcesDescriptor}); err != nil {
		return nil, fmt.Errorf("assets module: %w", err)
	}
	return &AssetsModule{registry: reg, opts: opts}, nil
}

func (m *AssetsModule) Name() string                   { return "assets" }
func (m *AssetsModule) Category() issue.Category       { return issue.CategoryAsset }
func (m *AssetsModule) Registry() *descriptor.Registry { return m.registry }

func (m *AssetsModule) Audit(ctx context.Context, in Input, emit func(*issue.Issue)) (Result, error) {
	if in.Root == "" {
		return Result{Status: StatusCompleted}, nil
	}
	large, _ := m.registry.ByID(largeFileDescriptor.ID)
	resources, _ := m.registry.ByID(resourcesDescriptor.ID)

	progress := in.Progress
	if progress == nil {
		progress = nopProgress{}
	}
	progress.Start(0, "Analyzing assets")
	defer progress.Clear()

	var res Result
	report := func(d *descriptor.Descriptor, path, desc string) {
		emit(&issue.Issue{
			Descriptor:  d,
			Description: desc,
			Category:    issue.CategoryAsset,
			Location:    &universe.Location{Path: path},
			Severity:    d.Severity,
		})
		issuesFound.WithLabelValues(issue.CategoryAsset.String()).Inc()
		res.Issues++
	}

	err := filepath.WalkDir(in.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return errCancelled
		}
		if entry.IsDir() {
			if path != in.Root && slices.Contains(m.opts.SkipDirs, entry.Name()) {
				return filepath.SkipDir
			}
			if entry.Name() == "Resources" {
				report(resources, path, fmt.Sprintf("'%s' is a Resources folder", filepath.ToSlash(path)))
			}
			return nil
		}
		if !entry.Type().IsRegular() || isSource(path) {
			return nil
		}
		res.Methods++
		progress.Advance()

		info, err := entry.Info()
		if err != nil {
			return err
		}
		if info.Size() > m.opts.LargeFileThreshold {
			report(large, path, fmt.Sprintf("'%s' is %s", filepath.ToSlash(path), humanize.Bytes(uint64(info.Size()))))
		}
		return nil
	})
	if errors.Is(err, errCancelled) {
		res.Status = StatusCancelled
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("walking %s: %w", in.Root, err)
	}
	res.Status = StatusCompleted
	return res, nil
}

func isSource(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go", ".s", ".mod", ".sum", ".cs", ".md":
		return true
	}
	return false
}
