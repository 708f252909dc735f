package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Engine identifies which engine produced a decision.
const (
	EngineDedupe   = "dedupe"
	EngineMatch    = "match"
	EngineClassify = "classify"
)

// Signals carries the numeric evidence behind a dedupe/match/classify decision.
type Signals struct {
	AmountDelta      int64   `json:"amount_delta"` // minor units
	DateDeltaDays    int     `json:"date_delta_days"`
	DescriptionScore float64 `json:"description_score"`
}

// DecisionRecord is the atomic, append-only audit unit. One record is emitted
// per decision; records are never mutated after being recorded.
type DecisionRecord struct {
	ID           string    `json:"id"`
	RunID        string    `json:"run_id"`
	Seq          int       `json:"seq"`
	Engine       string    `json:"engine"`
	Rule         string    `json:"rule"`
	InputIDs     []string  `json:"input_ids"`
	Outcome      string    `json:"outcome"`
	Confidence   float64   `json:"confidence"`
	Signals      Signals   `json:"signals"`
	Timestamp    time.Time `json:"timestamp"`
	PreviousHash string    `json:"previous_hash"`
	Hash         string    `json:"hash"`
}

// Recorder consumes decision records as they are produced. The engines emit
// through this interface; they never own or cache records themselves.
type Recorder interface {
	Record(rec DecisionRecord) DecisionRecord
}

// ChainRecorder collects decision records in order and links them with a
// tamper-evident hash chain, in the style of a chained audit log.
type ChainRecorder struct {
	mu           sync.Mutex
	runID        string
	previousHash string
	records      []DecisionRecord
	now          func() time.Time
}

// NewChainRecorder creates a recorder for one run, initialized with a zero hash.
func NewChainRecorder(runID string) *ChainRecorder {
	return &ChainRecorder{
		runID:        runID,
		previousHash: strings.Repeat("0", 64),
		now:          time.Now,
	}
}

// Record completes the record (id, run, sequence, timestamp, chain hashes),
// appends it to the chain, and returns the completed record.
func (c *ChainRecorder) Record(rec DecisionRecord) DecisionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec.ID = uuid.New().String()
	rec.RunID = c.runID
	rec.Seq = len(c.records)
	rec.Timestamp = c.now().UTC()
	rec.PreviousHash = c.previousHash
	rec.Hash = recordHash(rec)

	c.previousHash = rec.Hash
	c.records = append(c.records, rec)
	return rec
}

// Records returns the full ordered decision stream recorded so far.
func (c *ChainRecorder) Records() []DecisionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]DecisionRecord, len(c.records))
	copy(out, c.records)
	return out
}

func recordHash(rec DecisionRecord) string {
	input := fmt.Sprintf("%s|%d|%s|%s|%s|%s|%.6f|%d|%d|%.6f|%s",
		rec.PreviousHash,
		rec.Seq,
		rec.Engine,
		rec.Rule,
		strings.Join(rec.InputIDs, ","),
		rec.Outcome,
		rec.Confidence,
		rec.Signals.AmountDelta,
		rec.Signals.DateDeltaDays,
		rec.Signals.DescriptionScore,
		rec.Timestamp.Format(time.RFC3339Nano),
	)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// VerifyChain checks that a slice of records forms a valid hash chain.
func VerifyChain(records []DecisionRecord) bool {
	for i, rec := range records {
		if i > 0 && rec.PreviousHash != records[i-1].Hash {
			return false
		}
		if recordHash(rec) != rec.Hash {
			return false
		}
	}
	return true
}
