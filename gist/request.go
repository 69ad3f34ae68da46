package gist

import (
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/slack-lackey/maid-server/core"
)

const messageExtension = "js"

// Source is everything needed to describe one gist.
type Source struct {
	Kind     core.SnippetKind
	Author   string
	Filename string
	Filetype string
	Content  string
}

// BuildRequest derives the title, description and content for src at now.
func BuildRequest(src Source, now time.Time) core.GistRequest {
	return core.GistRequest{
		Title:       Title(src, now),
		Description: Description(src.Author, now),
		Content:     src.Content,
	}
}

// Title keeps an explicit filename unless it starts with "-"; otherwise the
// title is <slug(author)>-<unix ms>.<ext>.
func Title(src Source, now time.Time) string {
	name := strings.TrimSpace(src.Filename)
	if name != "" && !strings.HasPrefix(name, "-") {
		return name
	}
	return Slug(src.Author) + "-" + strconv.FormatInt(now.UnixMilli(), 10) + "." + extension(src)
}

func Description(author string, now time.Time) string {
	return "Created by " + strings.TrimSpace(author) + " on " + FormatOrdinalDate(now)
}

// Slug lowercases s and replaces every whitespace run with a single dash.
func Slug(s string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(s), unicode.IsSpace)
	if len(fields) == 0 {
		return "snippet"
	}
	return strings.ToLower(strings.Join(fields, "-"))
}

// FormatOrdinalDate renders t as "Monday, January 2nd 2006, 3:04:05 pm".
func FormatOrdinalDate(t time.Time) string {
	return t.Format("Monday, January ") +
		strconv.Itoa(t.Day()) + ordinalSuffix(t.Day()) +
		t.Format(" 2006, 3:04:05 pm")
}

func ordinalSuffix(day int) string {
	switch day % 100 {
	case 11, 12, 13:
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

func extension(src Source) string {
	if src.Kind != core.SnippetKindFile {
		return messageExtension
	}
	if ext := strings.TrimPrefix(path.Ext(strings.TrimSpace(src.Filename)), "."); ext != "" {
		return strings.ToLower(ext)
	}
	if filetype := strings.TrimSpace(src.Filetype); filetype != "" && filetype != "text" {
		return strings.ToLower(filetype)
	}
	return "txt"
}
