package search

import "strings"

// Predicate is a structural search restriction. The concrete variants are
// FileScope, LanguageScope, DefaultLibraries, AnyOf and AllOf; Translate
// turns any combination of them into SQL over the tracks, files and
// libraries tables.
type Predicate interface {
	translate(b *sqlBuilder)
}

// FileScope matches files of one library. A nil Path matches the whole
// library, a Path ending in '/' matches a directory prefix, and any other
// Path matches one file.
type FileScope struct {
	LibraryID int64
	Path      *string
}

// LanguageScope matches tracks with the given language tag, or tracks
// without one when Language is nil.
type LanguageScope struct {
	Language *string
}

// DefaultLibraries matches libraries that are searched by default.
type DefaultLibraries struct{}

// AnyOf matches when at least one member matches. An empty AnyOf matches
// nothing.
type AnyOf []Predicate

// AllOf matches when every member matches. An empty AllOf matches
// everything.
type AllOf []Predicate

type sqlBuilder struct {
	sb   strings.Builder
	args []any
}

// Translate renders p as an SQL boolean expression and its arguments.
func Translate(p Predicate) (string, []any) {
	if p == nil {
		return "1", nil
	}
	b := &sqlBuilder{}
	p.translate(b)
	return b.sb.String(), b.args
}

func (f FileScope) translate(b *sqlBuilder) {
	b.sb.WriteString("(files.library_id = ?")
	b.args = append(b.args, f.LibraryID)

	if f.Path != nil && *f.Path != "" {
		if strings.HasSuffix(*f.Path, "/") {
			b.sb.WriteString(` AND files.path LIKE ? ESCAPE '\'`)
			b.args = append(b.args, escapeLike(*f.Path)+"%")
		} else {
			b.sb.WriteString(" AND files.path = ?")
			b.args = append(b.args, *f.Path)
		}
	}
	b.sb.WriteString(")")
}

func (l LanguageScope) translate(b *sqlBuilder) {
	if l.Language == nil {
		b.sb.WriteString("tracks.language IS NULL")
		return
	}
	b.sb.WriteString("tracks.language = ?")
	b.args = append(b.args, *l.Language)
}

func (DefaultLibraries) translate(b *sqlBuilder) {
	b.sb.WriteString("libraries.search_by_default")
}

func (a AnyOf) translate(b *sqlBuilder) {
	joinPredicates(b, a, " OR ", "0")
}

func (a AllOf) translate(b *sqlBuilder) {
	joinPredicates(b, a, " AND ", "1")
}

func joinPredicates(b *sqlBuilder, ps []Predicate, op, empty string) {
	if len(ps) == 0 {
		b.sb.WriteString(empty)
		return
	}
	b.sb.WriteString("(")
	for i, p := range ps {
		if i > 0 {
			b.sb.WriteString(op)
		}
		p.translate(b)
	}
	b.sb.WriteString(")")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
