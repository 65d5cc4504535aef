// Package inferkit is the client-side data-access layer for an inference API
// UI: a deduplicated, auto-invalidating cache of resource fetches keyed by
// path. Streaming text generation lives in the generate subpackage.
//
// Components:
//   - Client: index of live entries (key -> refcounted slot), per-key
//     generations and the invalidation cascade.
//   - Handle[V]: a consumer's reference to one entry. Reactive State plus
//     Refetch / Post / Put / Delete.
//   - transport.Doer: the HTTP layer (GET/POST/PUT/DELETE <base>/<key>).
//   - codec: decodes bodies into V by Content-Type.
//
// Lifetime: the client never keeps an entry alive on its own. An entry lives
// while at least one Handle references it; releasing the last handle drops it
// and the next Acquire starts from a fresh, loading entry.
//
// Consistency:
//
//	h, _ := inferkit.Acquire[[]Message](client, "chat/42/messages")
//	defer h.Release()
//	_ = h.Refetch(ctx)                  // concurrent calls share one GET
//	_, _ = h.Post(ctx, Message{...})    // then "chat", "chat/42", "chat/42/messages" refetch
//
// Every successful or failed write invalidates its key: each live entry whose
// key is a prefix of the written key gets its generation bumped and is
// refetched before the write returns. Fetches that started under an older
// generation are discarded instead of overwriting newer data.
package inferkit
