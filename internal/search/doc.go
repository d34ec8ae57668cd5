// Package search answers phrase queries over conversation text.
//
// Filters are expressed as Predicates, a small closed set of variants
// (FileScope, LanguageScope, DefaultLibraries) combined with AnyOf and
// AllOf. Translate is the only place that turns them into SQL, which both
// engines reuse:
//
//   - FTSEngine runs FTS5 MATCH with bm25 ranking and snippets
//   - BleveEngine queries a bleve index and filters its hits through the
//     database
//
// Results are ordered most relevant first and Relevance is higher for
// better matches in both engines.
package search
