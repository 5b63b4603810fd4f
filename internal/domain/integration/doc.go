// Package integration contains the Integration bounded context.
// This context describes the external data sources the reconciliation engine pulls from.
//
// Key concepts:
//   - ProviderCode: closed set of supported providers (Meta ads, Pancake POS)
//   - AdAccount / Shop: tenant-owned source entities, read-only to the engine
//   - RawAdInsight / RawOrder: records fetched for one entity and one date
//   - AdInsightClient / OrderClient: ports implemented by provider adapters
//   - FetchError: classified failure of a fetch after retries
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
