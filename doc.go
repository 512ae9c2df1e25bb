// Package kvcache implements one cache contract over heterogeneous stores:
// in-process maps, Web-Storage-like media, JSON files, cookies, BigCache and
// the Redis family (native protocol, Upstash REST, Vercel KV).
//
// Components:
//   - Store: byte store primitives (get, put, remove, flush) plus optional
//     capabilities (Exister, Counter, MultiGetter, Runner, Pruner).
//   - Driver: key prefixing, TTL policy, value codec and the derived
//     operations (has, increment, decrement, remember, bulk get).
//   - Registry: name -> Driver lookup with a fallback.
//
// Keys:
//
//	<prefix>.<key>   - prefix ends in a letter or digit ("ns" -> "ns.k")
//	<prefix><key>    - any other prefix ("app:" -> "app:k")
//
// Expiry is time based only. Redis-family stores expire natively; every other
// store records the expiry next to the value and deletes it lazily when a read
// finds it expired. Call Prune to sweep media nobody reads.
//
// Typed usage:
//
//	n, _ := kvcache.Remember(ctx, d, "answer", func(ctx context.Context) (int, error) {
//	    return compute(ctx)
//	}, kvcache.In(time.Minute))
package kvcache
