package index

// Entry is one key of the index with every position inserted under it.
type Entry struct {
	Key       string   `json:"key"`
	Positions []uint32 `json:"positions"`
}

// Stats summarises the contents of a MultiMap.
type Stats struct {
	Keys       int   `json:"keys"`
	Postings   int   `json:"postings"`
	ShardSizes []int `json:"shard_sizes"`
}

type posting struct {
	key string
	pos uint32
}
