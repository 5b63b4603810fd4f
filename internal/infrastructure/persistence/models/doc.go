// Package models holds the GORM table models of the engine. Domain types carry no
// ORM tags; each model converts to and from its domain type, and repositories
// only ever hand domain types to callers.
//
//   - base.go: identity and timestamp columns shared by entity tables
//   - workflow.go: workflows and their executions
//   - source.go: ad accounts, shops, sealed credentials and raw fetched records
//   - reconcile.go: reconciled ad and campaign rows
package models
