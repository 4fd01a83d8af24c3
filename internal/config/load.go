package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Load error codes.
const (
	ErrCodeNotFound    = "E005"
	ErrCodeUnsupported = "E008"
	ErrCodeParse       = "E009"
	ErrCodeSchema      = "E010"
)

// LoadError represents a failure to read or decode a config file.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads a .yaml, .yml or .cue file. Absent fields keep their defaults.
// The result is not validated; call Validate once overrides are applied.
func Load(path string) (Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Session{}, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading config: %v", err)}
	}
	return Parse(path, data)
}

// Parse decodes data, choosing the format from the extension of name.
func Parse(name string, data []byte) (Session, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return parseYAML(data)
	case ".cue":
		return parseCUE(name, data)
	default:
		return Session{}, &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported config format %q", filepath.Ext(name))}
	}
}

func parseYAML(data []byte) (Session, error) {
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Session{}, &LoadError{Code: ErrCodeParse, Message: fmt.Sprintf("parsing YAML: %v", err)}
	}
	return s, nil
}

func parseCUE(name string, data []byte) (Session, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Session{}, &LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("building schema: %v", err)}
	}

	value := ctx.CompileBytes(data, cue.Filename(name))
	if err := value.Err(); err != nil {
		return Session{}, cueLoadError(ErrCodeParse, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Session")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Session{}, cueLoadError(ErrCodeSchema, err)
	}

	s := Default()
	if err := unified.Decode(&s); err != nil {
		return Session{}, cueLoadError(ErrCodeSchema, err)
	}
	return s, nil
}

func cueLoadError(code string, err error) *LoadError {
	le := &LoadError{Code: code, Message: cueerrors.Details(err, nil)}
	le.Message = strings.TrimSpace(le.Message)
	if positions := cueerrors.Positions(err); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
