package descriptor

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed rules/*.yaml
var builtinRules embed.FS

// ruleFile is the YAML layout of a descriptor file.
type ruleFile struct {
	Descriptors []ruleEntry `yaml:"descriptors" validate:"required,min=1,dive"`
}

type ruleEntry struct {
	ID       string   `yaml:"id" validate:"required"`
	Type     string   `yaml:"type" validate:"required"`
	Method   string   `yaml:"method" validate:"required"`
	Title    string   `yaml:"title"`
	Areas    []string `yaml:"areas" validate:"required,min=1,dive,oneof=CPU GPU Memory BuildSize LoadTime Quality Requirement"`
	Severity string   `yaml:"severity" validate:"required,oneof=info minor moderate major critical"`
	Problem  string   `yaml:"problem" validate:"required"`
	Solution string   `yaml:"solution" validate:"required"`
}

var structValidator = sync.OnceValue(func() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
})

// Parse decodes and validates a descriptor file. Unknown keys are rejected.
func Parse(r io.Reader) ([]Descriptor, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f ruleFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty descriptor file", ErrMalformedDescriptor)
		}
		return nil, fmt.Errorf("parsing descriptors: %w", err)
	}
	if err := structValidator().Struct(&f); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedDescriptor, describeValidation(err))
	}

	out := make([]Descriptor, 0, len(f.Descriptors))
	for _, e := range f.Descriptors {
		sev, err := ParseSeverity(e.Severity)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDescriptor, e.ID, err)
		}
		areas := make([]Area, len(e.Areas))
		for i, a := range e.Areas {
			areas[i] = Area(a)
		}
		out = append(out, Descriptor{
			ID:       e.ID,
			Type:     e.Type,
			Method:   e.Method,
			Title:    e.Title,
			Areas:    areas,
			Severity: sev,
			Problem:  strings.TrimSpace(e.Problem),
			Solution: strings.TrimSpace(e.Solution),
		})
	}
	return out, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

// LoadFile parses the descriptor file at path.
func LoadFile(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptors: %w", err)
	}
	ds, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Builtin returns the embedded rule set with the given name ("go", "dotnet").
func Builtin(name string) ([]Descriptor, error) {
	data, err := builtinRules.ReadFile("rules/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown builtin rule set %q", name)
	}
	ds, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("builtin %s: %w", name, err)
	}
	return ds, nil
}

// BuiltinSets lists the embedded rule set names.
func BuiltinSets() []string {
	entries, _ := builtinRules.ReadDir("rules")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	return names
}
