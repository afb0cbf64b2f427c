package sqlparams

import (
	"strconv"
	"strings"
)

// Placeholder selects the positional marker style written in place of each
// named parameter.
//
//   - Question  → "?"          (MySQL, SQLite, DuckDB)
//   - Dollar    → "$1, $2, …"  (PostgreSQL)
//   - AtP       → "@p1, @p2…"  (SQL Server)
//   - ColonNum  → ":1, :2, …"  (Oracle)
type Placeholder int

const (
	Question Placeholder = iota
	Dollar
	AtP
	ColonNum
)

func (p Placeholder) String() string {
	switch p {
	case Question:
		return "question"
	case Dollar:
		return "dollar"
	case AtP:
		return "atp"
	case ColonNum:
		return "colonnum"
	}
	return "placeholder(" + strconv.Itoa(int(p)) + ")"
}

// appendMarker writes the marker for the n-th (1-based) parameter.
func (p Placeholder) appendMarker(b []byte, n int) []byte {
	switch p {
	case Dollar:
		b = append(b, '$')
	case AtP:
		b = append(b, '@', 'p')
	case ColonNum:
		b = append(b, ':')
	default:
		return append(b, '?')
	}
	return strconv.AppendInt(b, int64(n), 10)
}

// PlaceholderFor picks a Placeholder from a database/sql driver name.
//
//	sqlparams.PlaceholderFor("pgx")       // Dollar
//	sqlparams.PlaceholderFor("sqlserver") // AtP
//	sqlparams.PlaceholderFor("sqlite3")   // Question
func PlaceholderFor(driverName string) Placeholder {
	switch strings.ToLower(driverName) {
	case "pgx", "postgres", "postgresql", "pq", "pg":
		return Dollar
	case "sqlserver", "mssql":
		return AtP
	case "godror", "oracle", "goracle":
		return ColonNum
	default:
		return Question
	}
}
