package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord is the persisted outcome of one solve.
type RunRecord struct {
	VersionedRecord
	ID             string   `json:"id"`
	CreatedAtUTC   string   `json:"created_at_utc"`
	Alphabet       string   `json:"alphabet"`
	CorpusDigest   string   `json:"corpus_digest"`
	Seed           int64    `json:"seed"`
	Iterations     int      `json:"iterations"`
	StepSize       int      `json:"step_size"`
	PrintEvery     int      `json:"print_every"`
	Chains         int      `json:"chains"`
	BestChain      int      `json:"best_chain"`
	Ciphertext     string   `json:"ciphertext"`
	Plaintext      string   `json:"plaintext"`
	BestKey        []int    `json:"best_key"`
	BestMapping    string   `json:"best_mapping"`
	BestScore      float64  `json:"best_score"`
	InitialScore   float64  `json:"initial_score"`
	Accepted       int      `json:"accepted"`
	Rejected       int      `json:"rejected"`
	Cancelled      bool     `json:"cancelled"`
	BestFixesZero  bool     `json:"best_fixes_zero"`
	KeyAccuracy    *float64 `json:"key_accuracy,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	DurationMillis int64    `json:"duration_millis"`
}

// ReferenceModel caches the bigram counts of a corpus under its digest.
type ReferenceModel struct {
	VersionedRecord
	Digest   string      `json:"digest"`
	Alphabet string      `json:"alphabet"`
	Source   string      `json:"source,omitempty"`
	Lines    int         `json:"lines"`
	Counts   [][]float64 `json:"counts"`
}

// TracePoint is one sample of the best chain's score history.
type TracePoint struct {
	Iteration    int     `json:"iteration"`
	CurrentScore float64 `json:"current_score"`
	BestScore    float64 `json:"best_score"`
	Accepted     int     `json:"accepted"`
}
