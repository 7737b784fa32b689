// Package unitofwork shares one session between repositories of a bind and
// scopes their writes in a single transaction.
package unitofwork
