// Package schema validates declared action schemas against the live workbook
// database, normalizes introspected column rows, and generates the DDL needed
// to bring the database in line with a declaration.
package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierRegex validates SQL identifiers (column names, table names).
// Must start with a letter or underscore, followed by alphanumeric or underscore.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// reservedWords are rejected as generated table or column names.
var reservedWords = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"DROP": true, "CREATE": true, "ALTER": true, "TRUNCATE": true,
	"UNION": true, "INTO": true, "FROM": true, "WHERE": true,
	"TABLE": true, "GRANT": true, "REVOKE": true, "INDEX": true,
	"VIEW": true, "SCHEMA": true, "PRIMARY": true, "REFERENCES": true,
}

// ValidateIdentifier ensures a SQL identifier is safe to splice into DDL.
// It rejects empty strings, names over 63 characters (the Postgres limit),
// names outside [a-zA-Z_][a-zA-Z0-9_]* and reserved words.
func ValidateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 63 {
		return fmt.Errorf("identifier too long (max 63 chars): %q", name)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("invalid identifier %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
	}
	if reservedWords[strings.ToUpper(name)] {
		return fmt.Errorf("identifier %q is a SQL reserved word", name)
	}
	return nil
}
