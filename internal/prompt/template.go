// Package prompt renders performer instructions for the agent. Templates are
// plain text with {{variable}} substitution and {{#if variable}}...{{/if}}
// conditional blocks; projects can override any built-in template by dropping
// a file under .autoloop/templates/ in the working directory.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	varRe      = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)
	ifOpenRe   = regexp.MustCompile(`\{\{#if\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)
	ifCloseStr = "{{/if}}"
)

// Vars is a map of variable names to values for template rendering.
type Vars map[string]string

// Render expands a template string with the given variables.
// {{variable}} is replaced with its value. Missing required variables cause
// an error. {{#if variable}}...{{/if}} blocks are included only if the
// variable is non-empty.
func Render(tmpl string, vars Vars) (string, error) {
	result, err := processConditionals(tmpl, vars)
	if err != nil {
		return "", err
	}

	var missing []string
	expanded := varRe.ReplaceAllStringFunc(result, func(match string) string {
		m := varRe.FindStringSubmatch(match)
		if m == nil {
			return match
		}
		name := m[1]
		if val, ok := vars[name]; ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}

	return expanded, nil
}

// processConditionals handles {{#if var}}...{{/if}} blocks, supporting
// nesting. It processes innermost blocks first by finding the last {{#if
// before each {{/if}}.
func processConditionals(tmpl string, vars Vars) (string, error) {
	result := tmpl
	for {
		closeIdx := strings.Index(result, ifCloseStr)
		if closeIdx == -1 {
			break
		}

		prefix := result[:closeIdx]
		openLocs := ifOpenRe.FindAllStringIndex(prefix, -1)
		if openLocs == nil {
			return "", fmt.Errorf("dangling {{/if}} without matching {{#if}}")
		}

		lastOpen := openLocs[len(openLocs)-1]
		openStart := lastOpen[0]
		openEnd := lastOpen[1]

		openTag := prefix[openStart:openEnd]
		m := ifOpenRe.FindStringSubmatch(openTag)
		if m == nil {
			return "", fmt.Errorf("failed to parse conditional tag: %s", openTag)
		}
		varName := m[1]

		body := result[openEnd:closeIdx]
		closeEnd := closeIdx + len(ifCloseStr)

		var replacement string
		if val, ok := vars[varName]; ok && val != "" {
			replacement = body
		}

		result = result[:openStart] + replacement + result[closeEnd:]
	}

	if ifOpenRe.MatchString(result) {
		loc := ifOpenRe.FindString(result)
		return "", fmt.Errorf("unclosed conditional block: %s", loc)
	}

	return result, nil
}

// overrideDir is where a project keeps its template overrides, relative to
// the working directory.
const overrideDir = ".autoloop/templates"

// Load returns the template for a performer. A project-level override under
// .autoloop/templates/<name>.md wins over the built-in template.
func Load(name, workdir string) (string, error) {
	if workdir != "" {
		path := filepath.Join(workdir, overrideDir, name+".md")
		if data, err := os.ReadFile(path); err == nil {
			return string(data), nil
		}
	}
	tmpl, ok := builtinTemplates[name+".md"]
	if !ok {
		return "", fmt.Errorf("no template for performer %q", name)
	}
	return tmpl, nil
}

// InstallBuiltinTemplates writes the built-in templates into the project's
// override directory so they can be customized. Existing files are left
// untouched.
func InstallBuiltinTemplates(workdir string) error {
	dir := filepath.Join(workdir, overrideDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create templates dir: %w", err)
	}

	for name, content := range builtinTemplates {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write template %q: %w", name, err)
		}
	}
	return nil
}

// Builder resolves and renders the instruction for a performer.
type Builder struct {
	Workdir        string
	WhiteboardPath string
	TrackerTag     string
}

// Instruction renders the instruction text for the named performer.
func (b *Builder) Instruction(performer string) (string, error) {
	tmpl, err := Load(performer, b.Workdir)
	if err != nil {
		return "", err
	}
	whiteboard := b.WhiteboardPath
	if whiteboard == "" {
		whiteboard = "WHITEBOARD.md"
	}
	tag := b.TrackerTag
	if tag == "" {
		tag = "autoloop"
	}
	return Render(tmpl, Vars{
		"whiteboard_path": whiteboard,
		"tracker_tag":     tag,
	})
}
