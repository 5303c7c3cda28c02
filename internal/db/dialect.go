package db

import "regexp"

// The embedded backend accepts MySQL-dialect statements and rewrites them to
// SQLite syntax through this ordered rule table. Constructs SQLite cannot
// express (named indexes, foreign keys, cascade clauses) are stripped rather
// than rejected: schema portability is traded for referential-integrity
// enforcement.
type rewriteRule struct {
	name string
	re   *regexp.Regexp
	repl string
}

var rewriteRules = []rewriteRule{
	{"bigint", regexp.MustCompile(`(?i)BIGINT`), "INTEGER"},
	{"varchar", regexp.MustCompile(`(?i)VARCHAR\(\d+\)`), "TEXT"},
	{"longtext", regexp.MustCompile(`(?i)LONGTEXT`), "TEXT"},
	{"json", regexp.MustCompile(`(?i)\bJSON\b`), "TEXT"},
	{"enum", regexp.MustCompile(`(?i)ENUM\([^)]+\)`), "TEXT"},
	{"boolean", regexp.MustCompile(`(?i)BOOLEAN`), "INTEGER"},
	{"tinyint", regexp.MustCompile(`(?i)TINYINT\(1\)`), "INTEGER"},
	{"autoincrement", regexp.MustCompile(`(?i)AUTO_INCREMENT`), "AUTOINCREMENT"},
	{"index", regexp.MustCompile(`(?i),\s*INDEX\s+\w+\s*\([^)]+\)`), ""},
	{"foreign-key", regexp.MustCompile(`(?i),\s*FOREIGN\s+KEY\s*\([^)]+\)\s*REFERENCES\s+\w+\s*\([^)]+\)(\s+ON\s+DELETE\s+CASCADE)?(\s+ON\s+UPDATE\s+CASCADE)?`), ""},
	{"on-delete", regexp.MustCompile(`(?i)\s+ON\s+DELETE\s+CASCADE`), ""},
	{"on-update", regexp.MustCompile(`(?i)\s+ON\s+UPDATE\s+CASCADE`), ""},
	{"greatest", regexp.MustCompile(`(?i)\bGREATEST\(`), "MAX("},
	{"trailing-comma", regexp.MustCompile(`,\s*\)`), ")"},
	{"double-comma", regexp.MustCompile(`,\s*,`), ","},
}

// Translate rewrites a MySQL-dialect statement into SQLite syntax.
func Translate(stmt string) string {
	for _, r := range rewriteRules {
		stmt = r.re.ReplaceAllString(stmt, r.repl)
	}
	return stmt
}
