package finledger

import (
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// log is the process-wide logger. Callers needing a sub-logger derive one
// with With(); the package itself logs through log directly.
var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

var (
	reSQLComment = regexp.MustCompile(`--.*`)
	reSQLSpaces  = regexp.MustCompile(`\s+`)
)

// canonicalizeSQL strips trailing "--" comments and collapses whitespace so
// Trace-level query logging stays legible, mirroring the canonicalization
// original_source/connections.rs applies before logging a query.
func canonicalizeSQL(sql string) string {
	s := reSQLComment.ReplaceAllString(sql, "")
	s = reSQLSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// traceQuery logs a query at Trace level, canonicalized, matching §7's
// logging-level table (Trace for per-query SQL).
func traceQuery(name, sql string) {
	log.Trace().Str("query", name).Str("sql", canonicalizeSQL(sql)).Msg("query")
}
