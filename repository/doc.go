// Package repository provides a generic repository built on Bun. A
// repository either opens a session per call or runs on an external session
// owned by a unit of work. It covers CRUD by primary key, upserts, filtered
// lookups, and limit/offset and cursor pagination.
package repository
