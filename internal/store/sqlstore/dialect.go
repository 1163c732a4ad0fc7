// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlstore implements store.Backend once, against database/sql,
// parameterized by a small Dialect so sqlite and postgres drivers don't
// each carry a full copy of the same query logic. Every DML statement in
// this package is written with "?" placeholders and passed through
// Dialect.Rebind before execution.
package sqlstore

import "strings"

// Dialect captures the ways the supported SQL backends differ: bind
// parameter syntax and schema DDL.
type Dialect interface {
	// Name identifies the dialect for logging (e.g. "sqlite", "postgres").
	Name() string

	// Rebind converts a query written with "?" placeholders into the
	// dialect's native placeholder syntax.
	Rebind(query string) string

	// Schema returns the CREATE TABLE/INDEX statements to run at startup
	// when init_schema is enabled.
	Schema() []string

	// UpsertSuffix returns the clause appended to an INSERT to make it an
	// upsert on conflictCol, setting every column in updateCols from the
	// excluded/values row.
	UpsertSuffix(conflictCol string, updateCols []string) string
}

// DollarRebind rewrites sequential "?" placeholders into "$1", "$2", ...
// for dialects (postgres) that use numbered parameters.
func DollarRebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := [20]byte{}
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}
