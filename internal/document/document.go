// Package document models a heading-structured configuration file as an
// ordered arena of sections with byte spans into the original buffer.
// Spans, not copies, are what make the round-trip invariant cheap: a
// document that is parsed and rendered without mutation reproduces its
// input byte for byte.
package document

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"curator/internal/logging"
)

var (
	// ErrSectionNotFound is returned when no section matches a title,
	// exactly or after normalization.
	ErrSectionNotFound = errors.New("section not found")

	// ErrAmbiguousSection is returned when the normalized lookup finds
	// two or more equally close candidates. Callers escalate to an
	// ADDITION rather than guessing a target.
	ErrAmbiguousSection = errors.New("ambiguous section title")
)

// Section is one node in the arena. The preamble before the first
// heading (or an entirely heading-free document) is an implicit section
// with an empty title at level 0.
type Section struct {
	Title string
	Level int

	// Parent is the arena index of the enclosing section, -1 at the top.
	Parent int

	// HeadingStart..BodyStart covers the heading line including its
	// trailing newline; BodyStart..BodyEnd is everything until the next
	// heading of equal-or-shallower depth (subsections included).
	HeadingStart int
	BodyStart    int
	BodyEnd      int
}

// Document is a parsed configuration file. It is immutable; mutations
// produce new raw text (WithBody, WithAppended) leaving every byte
// outside the touched span unchanged.
type Document struct {
	raw      string
	sections []Section
}

// Parse builds the section arena from raw text. Heading markers # to
// ###### at line start delimit sections; headings inside fenced code
// blocks do not. Parse is total: any input yields a valid document.
func Parse(raw string) *Document {
	timer := logging.StartTimer(logging.CategoryDocument, "Parse")
	defer timer.Stop()

	d := &Document{raw: raw}

	type headingMark struct {
		start, bodyStart, level int
		title                   string
	}
	var marks []headingMark

	inFence := false
	fenceChar := byte(0)
	offset := 0

	for offset <= len(raw) {
		end := strings.IndexByte(raw[offset:], '\n')
		var line string
		var next int
		if end < 0 {
			line = raw[offset:]
			next = len(raw) + 1 // terminate loop after last line
		} else {
			line = raw[offset : offset+end]
			next = offset + end + 1
		}

		trimmed := strings.TrimLeft(line, " ")
		if isFenceLine(trimmed) {
			if !inFence {
				inFence = true
				fenceChar = trimmed[0]
			} else if trimmed[0] == fenceChar {
				inFence = false
			}
		} else if !inFence {
			if level, title, ok := parseHeading(line); ok {
				bodyStart := offset + len(line)
				if bodyStart < len(raw) {
					bodyStart++ // past the newline
				}
				marks = append(marks, headingMark{
					start:     offset,
					bodyStart: bodyStart,
					level:     level,
					title:     title,
				})
			}
		}

		if next > len(raw) {
			break
		}
		offset = next
	}

	// Implicit preamble section when content precedes the first heading
	// or the document has no headings at all.
	preambleEnd := len(raw)
	if len(marks) > 0 {
		preambleEnd = marks[0].start
	}
	if preambleEnd > 0 || len(marks) == 0 {
		d.sections = append(d.sections, Section{
			Title:        "",
			Level:        0,
			Parent:       -1,
			HeadingStart: 0,
			BodyStart:    0,
			BodyEnd:      preambleEnd,
		})
	}

	for i, m := range marks {
		// Body runs to the next heading of equal-or-shallower depth.
		bodyEnd := len(raw)
		for _, later := range marks[i+1:] {
			if later.level <= m.level {
				bodyEnd = later.start
				break
			}
		}
		d.sections = append(d.sections, Section{
			Title:        m.title,
			Level:        m.level,
			Parent:       -1,
			HeadingStart: m.start,
			BodyStart:    m.bodyStart,
			BodyEnd:      bodyEnd,
		})
	}

	d.assignParents()

	logging.Get(logging.CategoryDocument).Debug("parsed document: %d bytes, %d sections",
		len(raw), len(d.sections))
	return d
}

// assignParents links each section to the nearest preceding section of
// shallower depth, using a stack over the arena.
func (d *Document) assignParents() {
	var stack []int
	for i := range d.sections {
		s := &d.sections[i]
		if s.Level == 0 {
			continue
		}
		for len(stack) > 0 && d.sections[stack[len(stack)-1]].Level >= s.Level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			s.Parent = stack[len(stack)-1]
		}
		stack = append(stack, i)
	}
}

// parseHeading recognizes an ATX heading at line start: 1-6 '#' runes
// followed by at least one space.
func parseHeading(line string) (level int, title string, ok bool) {
	i := 0
	for i < len(line) && line[i] == '#' {
		i++
	}
	if i == 0 || i > 6 {
		return 0, "", false
	}
	if i >= len(line) || (line[i] != ' ' && line[i] != '\t') {
		return 0, "", false
	}
	title = strings.TrimSpace(line[i:])
	// Trailing closing hashes are decoration, not title.
	title = strings.TrimSpace(strings.TrimRight(title, "#"))
	return i, title, true
}

func isFenceLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

// Render reproduces the original bytes exactly. The document is never
// mutated in place, so this is the identity on the parse input.
func (d *Document) Render() string {
	return d.raw
}

// Sections returns the arena in document order.
func (d *Document) Sections() []Section {
	out := make([]Section, len(d.sections))
	copy(out, d.sections)
	return out
}

// Section returns the arena entry at idx.
func (d *Document) Section(idx int) (Section, error) {
	if idx < 0 || idx >= len(d.sections) {
		return Section{}, fmt.Errorf("section index %d out of range", idx)
	}
	return d.sections[idx], nil
}

// Body returns the body text of the section at idx.
func (d *Document) Body(idx int) string {
	if idx < 0 || idx >= len(d.sections) {
		return ""
	}
	s := d.sections[idx]
	return d.raw[s.BodyStart:s.BodyEnd]
}

// FindSection resolves a title to an arena index. Exact match wins;
// otherwise a normalized comparison (case-, whitespace- and
// punctuation-insensitive) is tried so that minor title drift between a
// synthesized suggestion and an existing heading does not spuriously
// create a duplicate section. Two or more equally close normalized
// candidates yield ErrAmbiguousSection.
func (d *Document) FindSection(title string) (int, error) {
	want := strings.TrimSpace(title)
	if want == "" {
		return 0, ErrSectionNotFound
	}

	for i, s := range d.sections {
		if s.Level > 0 && s.Title == want {
			return i, nil
		}
	}

	norm := NormalizeTitle(want)
	if norm == "" {
		return 0, ErrSectionNotFound
	}
	var candidates []int
	for i, s := range d.sections {
		if s.Level > 0 && NormalizeTitle(s.Title) == norm {
			candidates = append(candidates, i)
		}
	}

	switch len(candidates) {
	case 0:
		return 0, ErrSectionNotFound
	case 1:
		return candidates[0], nil
	default:
		logging.Get(logging.CategoryDocument).Warn("title %q matches %d sections after normalization",
			title, len(candidates))
		return 0, ErrAmbiguousSection
	}
}

// NormalizeTitle lowercases, drops punctuation, and collapses runs of
// whitespace to single spaces.
func NormalizeTitle(title string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		default:
			// punctuation dropped
		}
	}
	return strings.TrimSpace(b.String())
}

// WithBody returns new document text in which the body of the section
// at idx is replaced by newBody. Every byte outside the body span is
// carried over unchanged. newBody is newline-terminated if the original
// span was.
func (d *Document) WithBody(idx int, newBody string) (string, error) {
	if idx < 0 || idx >= len(d.sections) {
		return "", fmt.Errorf("section index %d out of range", idx)
	}
	s := d.sections[idx]

	old := d.raw[s.BodyStart:s.BodyEnd]
	if strings.HasSuffix(old, "\n") && !strings.HasSuffix(newBody, "\n") {
		newBody += "\n"
	}

	return d.raw[:s.BodyStart] + newBody + d.raw[s.BodyEnd:], nil
}

// WithChildAppended returns new document text with a fresh subsection
// inserted at the end of the parent's body span, one level below the
// parent. Bytes before and after the insertion point are unchanged.
func (d *Document) WithChildAppended(parentIdx int, title, body string) (string, error) {
	s, err := d.Section(parentIdx)
	if err != nil {
		return "", err
	}
	level := s.Level + 1
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}

	head := d.raw[:s.BodyEnd]

	var b strings.Builder
	b.WriteString(head)
	switch {
	case head == "" || strings.HasSuffix(head, "\n\n"):
	case strings.HasSuffix(head, "\n"):
		b.WriteString("\n")
	default:
		b.WriteString("\n\n")
	}
	b.WriteString(strings.Repeat("#", level))
	b.WriteString(" ")
	b.WriteString(strings.TrimSpace(title))
	b.WriteString("\n\n")
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n")
	if rest := d.raw[s.BodyEnd:]; rest != "" {
		b.WriteString("\n")
		b.WriteString(rest)
	}

	return b.String(), nil
}

// WithAppended returns new document text with a fresh section appended
// at the end: a heading at the given level followed by body. All
// existing bytes are unchanged; a blank separator line is inserted when
// the document does not already end in one.
func (d *Document) WithAppended(title string, level int, body string) string {
	if level < 1 {
		level = 2
	}
	if level > 6 {
		level = 6
	}

	var b strings.Builder
	b.WriteString(d.raw)

	switch {
	case d.raw == "" || strings.HasSuffix(d.raw, "\n\n"):
	case strings.HasSuffix(d.raw, "\n"):
		b.WriteString("\n")
	default:
		b.WriteString("\n\n")
	}

	b.WriteString(strings.Repeat("#", level))
	b.WriteString(" ")
	b.WriteString(strings.TrimSpace(title))
	b.WriteString("\n\n")
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n")

	return b.String()
}
