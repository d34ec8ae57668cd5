package search

import (
	"fmt"
	"strconv"
	"strings"
)

// FileFilter restricts results to a library, a directory inside it, or a
// single file. See FileScope.
type FileFilter struct {
	LibraryID int64   `json:"libraryId"`
	FilePath  *string `json:"filePath"`
}

// Filters are the optional restrictions of a search. Entries within each
// list are alternatives; the lists themselves must all match. An empty list
// imposes no restriction.
type Filters struct {
	File     []FileFilter `json:"file"`
	Language []*string    `json:"language"`
}

// Predicate converts the filters. Without file filters, results are limited
// to libraries searched by default; naming libraries explicitly widens the
// scope to exactly those.
func (f Filters) Predicate() Predicate {
	all := AllOf{}

	if len(f.File) == 0 {
		all = append(all, DefaultLibraries{})
	} else {
		files := make(AnyOf, 0, len(f.File))
		for _, ff := range f.File {
			files = append(files, FileScope{LibraryID: ff.LibraryID, Path: ff.FilePath})
		}
		all = append(all, files)
	}

	if len(f.Language) > 0 {
		langs := make(AnyOf, 0, len(f.Language))
		for _, l := range f.Language {
			langs = append(langs, LanguageScope{Language: l})
		}
		all = append(all, langs)
	}

	return all
}

// ParseFileFilters parses the "files" query parameter: a comma separated
// list of libraryId or libraryId/path entries.
func ParseFileFilters(param string) ([]FileFilter, error) {
	if param == "" {
		return nil, nil
	}

	entries := strings.Split(param, ",")
	filters := make([]FileFilter, 0, len(entries))
	for _, entry := range entries {
		idPart, path, hasPath := strings.Cut(entry, "/")
		id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid library id in file filter %q", entry)
		}

		f := FileFilter{LibraryID: id}
		if hasPath {
			f.FilePath = &path
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// ParseLanguages parses the "languages" query parameter: a comma separated
// list of language codes where an empty entry stands for tracks without a
// language tag.
func ParseLanguages(param string) []*string {
	if param == "" {
		return nil
	}

	entries := strings.Split(param, ",")
	langs := make([]*string, 0, len(entries))
	for _, entry := range entries {
		entry := strings.TrimSpace(entry)
		if entry == "" {
			langs = append(langs, nil)
			continue
		}
		langs = append(langs, &entry)
	}
	return langs
}
