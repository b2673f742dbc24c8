// Package prompt loads the prompt library used by generation subtasks.
//
// A prompt file holds a system part and a user part separated by a line "---";
// optional "SYSTEM:" and "USER:" headers are stripped. The user part may include
// other files with <-name->. Files without a separator are fragments meant for
// inclusion and have only a user part.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"
	"time"
)

// Prompt names used by the organizer.
const (
	QueryParser    = "query_parser"
	CreateNote     = "create_note"
	CreateReminder = "create_reminder"
	Search         = "search"
	SearchMetadata = "search_metadata"
	NoteMetadata   = "note_metadata"
	Analysis       = "analysis"
)

// ErrUnknownPrompt is returned when a prompt name is not in the library.
var ErrUnknownPrompt = errors.New("unknown prompt")

//go:embed prompts/*.txt
var embedded embed.FS

var includeRe = regexp.MustCompile(`<-([^<>]+)->`)

// Template is one parsed prompt file.
type Template struct {
	Name   string
	System string
	User   string
}

// Library renders prompts with a "now" header in a fixed time zone.
type Library struct {
	templates map[string]Template
	loc       *time.Location
	now       func() time.Time
}

// Default loads the embedded prompt library.
func Default(loc *time.Location) (*Library, error) {
	sub, err := fs.Sub(embedded, "prompts")
	if err != nil {
		return nil, fmt.Errorf("open embedded prompts: %w", err)
	}
	return Load(sub, loc)
}

// Load parses every *.txt file at the root of fsys and resolves includes.
func Load(fsys fs.FS, loc *time.Location) (*Library, error) {
	if loc == nil {
		loc = time.UTC
	}
	names, err := fs.Glob(fsys, "*.txt")
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}

	raw := make(map[string]string, len(names))
	for _, file := range names {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", file, err)
		}
		raw[strings.TrimSuffix(path.Base(file), ".txt")] = string(data)
	}

	lib := &Library{templates: make(map[string]Template, len(raw)), loc: loc, now: time.Now}
	for name, content := range raw {
		t := parse(name, content)
		user, err := resolveIncludes(t.User, raw)
		if err != nil {
			return nil, fmt.Errorf("prompt %s: %w", name, err)
		}
		t.User = user
		lib.templates[name] = t
	}
	return lib, nil
}

func parse(name, content string) Template {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	system, user, ok := strings.Cut(content, "\n---\n")
	if !ok {
		return Template{Name: name, User: strings.TrimSpace(content)}
	}
	return Template{
		Name:   name,
		System: strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(system), "SYSTEM:")),
		User:   strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(user), "USER:")),
	}
}

// resolveIncludes replaces <-name-> with the trimmed content of name.txt. Includes are
// not expanded recursively.
func resolveIncludes(text string, raw map[string]string) (string, error) {
	var missing []string
	out := includeRe.ReplaceAllStringFunc(text, func(m string) string {
		name := includeRe.FindStringSubmatch(m)[1]
		content, ok := raw[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return "\n" + strings.TrimSpace(content) + "\n"
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing include %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Get returns the parsed template.
func (l *Library) Get(name string) (Template, error) {
	t, ok := l.templates[name]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrUnknownPrompt, name)
	}
	return t, nil
}

// Location returns the zone used for the "now" header.
func (l *Library) Location() *time.Location { return l.loc }

// Now returns the current time in the library zone.
func (l *Library) Now() time.Time { return l.now().In(l.loc) }

// Render builds the system and user messages for one call: the contextual addition
// first, then the "now" header, the template user part and the input text.
func (l *Library) Render(name, input, addition string) (system, user string, err error) {
	t, err := l.Get(name)
	if err != nil {
		return "", "", err
	}

	var b strings.Builder
	if addition != "" {
		b.WriteString(addition)
		b.WriteString("\n\n")
	}
	b.WriteString(NowHeader(l.Now()))
	b.WriteString("\n\n")
	b.WriteString(t.User)
	b.WriteString("\n")
	b.WriteString(input)
	return t.System, b.String(), nil
}

// NowHeader renders the current time line prepended to every user prompt.
func NowHeader(now time.Time) string {
	return fmt.Sprintf("Now: %s %s", now.Format("2006-01-02T15:04:05Z07:00"), now.Weekday())
}
