package model

// MaxIdentifierLength is the maximum length in bytes of a namespace, type
// or key.
const MaxIdentifierLength = 255

// Ref addresses a single record by its full composite key.
type Ref struct {
	Namespace string `json:"namespace"`
	Type      string `json:"type"`
	Key       string `json:"key"`
}

func (r Ref) String() string {
	return r.Namespace + "/" + r.Type + "/" + r.Key
}

// Record is one stored document together with its address and write
// timestamp (seconds since the Unix epoch).
type Record struct {
	Namespace string   `json:"namespace"`
	Type      string   `json:"type"`
	Key       string   `json:"key"`
	Value     Document `json:"value"`
	Created   int64    `json:"created"`
}

// Ref returns the composite key of the record.
func (r *Record) Ref() Ref {
	return Ref{Namespace: r.Namespace, Type: r.Type, Key: r.Key}
}

// Item is one element of a partition listing.
type Item struct {
	Key     string   `json:"key"`
	Value   Document `json:"value"`
	Created int64    `json:"created"`
}

// ListOptions selects a window of a partition ordered by creation time.
// Ties on Created are broken by key in the same direction.
type ListOptions struct {
	Offset    int  `json:"offset"`
	Limit     int  `json:"limit"`
	Ascending bool `json:"ascending"`
}

// DefaultListOptions returns the first ten records, oldest first.
func DefaultListOptions() ListOptions {
	return ListOptions{Offset: 0, Limit: 10, Ascending: true}
}
