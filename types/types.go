package types

// Fingerprint is the stable string encoding of a perceptual hash
type Fingerprint string

// Outcome is the result of processing one discovered file
type Outcome int

const (
	OutcomeHashed Outcome = iota
	OutcomeDecodeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHashed:
		return "hashed"
	case OutcomeDecodeFailed:
		return "decode_failed"
	default:
		return "unknown"
	}
}

// ImageRecord holds the result of processing a single image file.
// Fingerprint is empty and Err is set when Outcome is OutcomeDecodeFailed.
type ImageRecord struct {
	Path        string      `json:"path"`
	Fingerprint Fingerprint `json:"fingerprint,omitempty"`
	Outcome     Outcome     `json:"outcome"`
	Err         error       `json:"-"`
}

// IndexEntry is a durable row of the dedup index
type IndexEntry struct {
	ID          int64       `json:"id"`
	Fingerprint Fingerprint `json:"fingerprint"`
	Path        string      `json:"path"`
}

// InsertResult reports whether an insert created a new index entry
type InsertResult int

const (
	Inserted InsertResult = iota
	AlreadyPresent
)

func (r InsertResult) String() string {
	if r == Inserted {
		return "inserted"
	}
	return "already_present"
}
