// Package history persists rotation history in a SQLite database.
//
// Each completed rotation is stored as one row: which instance became
// active, the exit IP before and after, the country of the new exit,
// and what triggered the rotation. The store is append-only; rows are
// never updated or deleted by the application.
package history
