// Package txstore keeps the journal of write operations submitted to the ledger by the session
package txstore

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/ledger"
	"github.com/lunfardo314/ledgerchat/util"
	"github.com/lunfardo314/unitrie/adaptors/badger_adaptor"
	"github.com/lunfardo314/unitrie/common"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/exp/slices"
)

type (
	Store interface {
		common.KVReader
		common.Traversable
		common.BatchedUpdatable
	}

	environment interface {
		global.Logging
		global.Metrics
	}

	Status string

	Record struct {
		ID          string    `json:"id"`
		Op          string    `json:"op"`
		Args        []any     `json:"args"`
		TxHash      string    `json:"txHash"`
		Status      Status    `json:"status"`
		Block       uint64    `json:"block,omitempty"`
		Error       string    `json:"error,omitempty"`
		ErrorKind   string    `json:"errorKind,omitempty"`
		SubmittedAt time.Time `json:"submittedAt"`
		CompletedAt time.Time `json:"completedAt,omitempty"`
	}

	// Journal implements ledger.Journal on top of key/value store
	Journal struct {
		environment
		mutex   sync.Mutex
		store   Store
		now     func() time.Time
		metrics *journalMetrics
	}

	journalMetrics struct {
		submitted prometheus.Counter
		completed *prometheus.CounterVec
	}
)

const (
	StatusSubmitted = Status("submitted")
	StatusConfirmed = Status("confirmed")
	StatusFailed    = Status("failed")

	TraceTag = "journal"

	journalPartition = byte('j')
	keySize          = 1 + 8 + 8
)

var _ ledger.Journal = &Journal{}

func New(env environment, store Store) *Journal {
	ret := &Journal{
		environment: env,
		store:       store,
		now:         time.Now,
	}
	if reg := env.MetricsRegistry(); reg != nil {
		ret.metrics = &journalMetrics{
			submitted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ledgerchat_journal_submitted",
				Help: "write operations recorded in the journal",
			}),
			completed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledgerchat_journal_completed",
				Help: "write operations completed, by status",
			}, []string{"status"}),
		}
		reg.MustRegister(ret.metrics.submitted, ret.metrics.completed)
	}
	return ret
}

// NewInMemory creates journal which does not survive the session
func NewInMemory(env environment) *Journal {
	return New(env, common.NewInMemoryKVStore())
}

// OpenBadger opens or creates persistent journal in the directory. The returned function closes the database
func OpenBadger(env environment, dir string) (*Journal, func(), error) {
	var db *badger.DB
	err := util.CatchPanicOrError(func() error {
		db = badger_adaptor.MustCreateOrOpenBadgerDB(dir, badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING))
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("can't open journal database '%s': %w", dir, err)
	}
	store := badger_adaptor.New(db)
	return New(env, store), func() { _ = db.Close() }, nil
}

// key is partition byte, big-endian submission time and short hash of the transaction,
// so iteration order is the order of submission
func (j *Journal) makeKey(ts time.Time, txHash string) []byte {
	h := blake2b.Sum256([]byte(txHash))
	ret := make([]byte, keySize)
	ret[0] = journalPartition
	binary.BigEndian.PutUint64(ret[1:9], uint64(ts.UnixNano()))
	copy(ret[9:], h[:8])
	return ret
}

func idFromKey(k []byte) string {
	return hex.EncodeToString(k[1:])
}

func keyFromID(id string) ([]byte, error) {
	b, err := hex.DecodeString(id)
	if err != nil || len(b) != keySize-1 {
		return nil, fmt.Errorf("wrong journal record id '%s'", id)
	}
	return common.Concat(journalPartition, b), nil
}

func (j *Journal) put(key []byte, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	batch := j.store.BatchedWriter()
	batch.Set(key, data)
	return batch.Commit()
}

// Submitted records the transaction and returns the record id
func (j *Journal) Submitted(op string, args []any, txHash string) string {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	ts := j.now()
	key := j.makeKey(ts, txHash)
	rec := &Record{
		ID:          idFromKey(key),
		Op:          op,
		Args:        args,
		TxHash:      txHash,
		Status:      StatusSubmitted,
		SubmittedAt: ts.UTC(),
	}
	if err := j.put(key, rec); err != nil {
		j.Log().Errorf("[journal] failed to record %s tx %s: %v", op, txHash, err)
		return ""
	}
	if j.metrics != nil {
		j.metrics.submitted.Inc()
	}
	j.Tracef(TraceTag, "recorded %s: %s tx %s", rec.ID, op, txHash)
	return rec.ID
}

// Completed records the outcome of the transaction
func (j *Journal) Completed(id string, rcpt *ledger.Receipt, err error) {
	if id == "" {
		return
	}
	j.mutex.Lock()
	defer j.mutex.Unlock()

	key, e := keyFromID(id)
	if e != nil {
		j.Log().Errorf("[journal] %v", e)
		return
	}
	rec, e := j.get(key)
	if e != nil {
		j.Log().Errorf("[journal] can't load record %s: %v", id, e)
		return
	}
	rec.CompletedAt = j.now().UTC()
	if rcpt != nil {
		rec.Block = rcpt.BlockNumber
	}
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		rec.ErrorKind = global.KindOf(err).String()
	} else {
		rec.Status = StatusConfirmed
	}
	if e = j.put(key, rec); e != nil {
		j.Log().Errorf("[journal] failed to update record %s: %v", id, e)
		return
	}
	if j.metrics != nil {
		j.metrics.completed.WithLabelValues(string(rec.Status)).Inc()
	}
}

func (j *Journal) get(key []byte) (*Record, error) {
	data := j.store.Get(key)
	if len(data) == 0 {
		return nil, fmt.Errorf("record not found")
	}
	ret := &Record{}
	if err := json.Unmarshal(data, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// Get returns the record by id
func (j *Journal) Get(id string) (*Record, bool) {
	key, err := keyFromID(id)
	if err != nil {
		return nil, false
	}
	rec, err := j.get(key)
	if err != nil {
		return nil, false
	}
	return rec, true
}

// Records returns journal records, the latest first. limit <= 0 means all records
func (j *Journal) Records(limit int) []*Record {
	all := make([]*Record, 0)
	j.store.Iterator([]byte{journalPartition}).Iterate(func(k, data []byte) bool {
		rec := &Record{}
		if err := json.Unmarshal(data, rec); err != nil {
			j.Log().Warnf("[journal] skipping corrupted record %x: %v", k, err)
			return true
		}
		all = append(all, rec)
		return true
	})
	// hex id keeps the byte order of the key
	slices.SortFunc(all, func(a, b *Record) int {
		return strings.Compare(a.ID, b.ID)
	})
	ret := make([]*Record, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(ret) >= limit {
			break
		}
		ret = append(ret, all[i])
	}
	return ret
}

// Pending returns records of transactions which were submitted but whose outcome is unknown
func (j *Journal) Pending() []*Record {
	ret := make([]*Record, 0)
	for _, rec := range j.Records(0) {
		if rec.Status == StatusSubmitted {
			ret = append(ret, rec)
		}
	}
	return ret
}
