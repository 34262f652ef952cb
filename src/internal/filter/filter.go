// FILE: loglayer/src/internal/filter/filter.go
package filter

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

// targetPattern restricts what a directive may name as a module target
var targetPattern = regexp.MustCompile(`^[A-Za-z0-9_\-.:]+$`)

// Directive sets the minimum level for records whose module matches Target.
type Directive struct {
	Target string
	Level  slog.Level
}

// Spec is a compiled severity/module filter.
// It is an immutable value; the zero Spec enables info and above.
type Spec struct {
	source     string
	def        slog.Level
	directives []Directive // longest target first
	pattern    *regexp.Regexp
	ignored    []string
}

// Parse compiles a directive string of the form
//
//	[level|target|target=level{,...}][/regex]
//
// Parsing is lossy and never fails. Invalid fragments are dropped and
// reported by Ignored. An empty directive yields the info baseline; a
// directive in which nothing is valid yields a filter accepting everything.
func Parse(directive string) Spec {
	s := Spec{source: directive, def: slog.LevelInfo}

	text := strings.TrimSpace(directive)
	if text == "" {
		return s
	}

	var pattern string
	hasPattern := false
	if i := strings.IndexByte(text, '/'); i >= 0 {
		text, pattern, hasPattern = text[:i], text[i+1:], true
	}

	valid := 0
	byTarget := make(map[string]slog.Level)
	for _, frag := range strings.Split(text, ",") {
		frag = strings.TrimSpace(frag)
		if frag == "" {
			continue
		}

		target, levelText, hasLevel := strings.Cut(frag, "=")
		target = strings.TrimSpace(target)

		if !hasLevel {
			if level, ok := ParseLevel(target); ok {
				s.def = level
				valid++
				continue
			}
			if targetPattern.MatchString(target) {
				byTarget[target] = LevelTrace
				valid++
				continue
			}
			s.ignored = append(s.ignored, frag)
			continue
		}

		level, ok := ParseLevel(levelText)
		if !ok || !targetPattern.MatchString(target) {
			s.ignored = append(s.ignored, frag)
			continue
		}
		byTarget[target] = level
		valid++
	}

	if hasPattern && pattern != "" {
		if re, err := regexp.Compile(pattern); err != nil {
			s.ignored = append(s.ignored, "/"+pattern)
		} else {
			s.pattern = re
			valid++
		}
	}

	for target, level := range byTarget {
		s.directives = append(s.directives, Directive{Target: target, Level: level})
	}
	sort.Slice(s.directives, func(i, j int) bool {
		a, b := s.directives[i].Target, s.directives[j].Target
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})

	// Nothing usable survived: degrade to accepting everything
	if valid == 0 && len(s.ignored) > 0 {
		s.def = LevelTrace
	}

	return s
}

// Enabled reports whether a record at level from module passes the level rules.
func (s Spec) Enabled(module string, level slog.Level) bool {
	return level >= s.threshold(module)
}

func (s Spec) threshold(module string) slog.Level {
	if module != "" {
		for _, d := range s.directives {
			if matchTarget(d.Target, module) {
				return d.Level
			}
		}
	}
	return s.def
}

// matchTarget reports whether target names module or one of its parents.
func matchTarget(target, module string) bool {
	if !strings.HasPrefix(module, target) {
		return false
	}
	rest := module[len(target):]
	return rest == "" || strings.HasPrefix(rest, ".") || strings.HasPrefix(rest, "::")
}

// MaxLevel returns the most verbose level any rule enables.
// Records below it can be rejected without knowing their module.
func (s Spec) MaxLevel() slog.Level {
	lowest := s.def
	for _, d := range s.directives {
		if d.Level < lowest {
			lowest = d.Level
		}
	}
	return lowest
}

// Matches applies the optional message pattern.
func (s Spec) Matches(message string) bool {
	return s.pattern == nil || s.pattern.MatchString(message)
}

// Default returns the level applied to records matching no directive.
func (s Spec) Default() slog.Level {
	return s.def
}

// Directives returns a copy of the per-target rules, longest target first.
func (s Spec) Directives() []Directive {
	out := make([]Directive, len(s.directives))
	copy(out, s.directives)
	return out
}

// Ignored returns the fragments dropped while parsing.
func (s Spec) Ignored() []string {
	out := make([]string, len(s.ignored))
	copy(out, s.ignored)
	return out
}

// Source returns the directive text this Spec was parsed from.
func (s Spec) Source() string {
	return s.source
}

// String renders the effective filter in directive syntax.
func (s Spec) String() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(LevelName(s.def)))

	targets := make([]Directive, len(s.directives))
	copy(targets, s.directives)
	sort.Slice(targets, func(i, j int) bool { return targets[i].Target < targets[j].Target })

	for _, d := range targets {
		b.WriteByte(',')
		b.WriteString(d.Target)
		b.WriteByte('=')
		b.WriteString(strings.ToLower(LevelName(d.Level)))
	}

	if s.pattern != nil {
		b.WriteByte('/')
		b.WriteString(s.pattern.String())
	}
	return b.String()
}
