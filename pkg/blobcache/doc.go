/*
Package blobcache is the composition root and typed object facade for the
blob cache engine (spec.md §4.6, §6, §9): it wires a Serializer, an optional
EncryptionProvider, a storage backend, and (for SQLite-backed stores) the
operation queue into a single Store, and exposes the generic
InsertObject/GetObject/GetOrFetchObject/GetAndFetchLatest/InvalidateObject
family on top of it.

A Builder owns the four well-known stores (UserAccount, LocalMachine,
Secure, InMemory) instead of relying on process-wide singletons; the
package-level UserAccount/LocalMachine/Secure/InMemory functions are a thin
compatibility accessor over a Builder installed with Init, and return
Disposed once Shutdown has run.

	┌──────────────┐   ┌───────────────────┐   ┌──────────────────┐
	│  Builder     │──▶│  Store            │──▶│ backend           │
	│ (Options)    │   │ (serializer+crypto│   │ queueBackend (sqlite,
	└──────────────┘   │  +reqcache.Cache) │   │  fronted by pkg/queue)
	                    └───────────────────┘   │ directBackend (bolt/
	                                            │  memory, via pkg/scheduler)
	                                            └──────────────────┘

GetOrFetchObject goes through reqcache.Cache so concurrent callers for the
same (type, key) share one factory/fetch evaluation; GetAndFetchLatest reads
through GetObject and calls its fetch function directly, so concurrent
GetAndFetchLatest calls are not coalesced. InvalidateObject and InvalidateAllObjects always
evict the request cache even when the backend call itself fails, per
spec.md §4.5's atomicity invariant.
*/
package blobcache
