package driven

// ByteCache is the byte-level storage behind the result cache. The shape
// matches gregjones/httpcache's Cache interface so its in-memory
// implementation satisfies the port directly; the sqlite and redis adapters
// provide durable alternatives.
//
// Implementations are best-effort: a failed Get is reported as a miss and a
// failed Set is dropped. The result cache re-fetches on miss, so losing an
// entry costs one upstream call, never correctness.
type ByteCache interface {
	// Get returns the stored bytes for key, or ok=false on a miss.
	Get(key string) (data []byte, ok bool)
	// Set stores data under key, replacing any previous value.
	Set(key string, data []byte)
	// Delete removes the entry for key if present.
	Delete(key string)
}
