package taskx

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mohans/taskx/codec"
)

// WorkItem is one deferred call as it travels through the queue store.
type WorkItem struct {
	ID          string        `json:"id"`
	Queue       string        `json:"queue"`
	CallableKey string        `json:"callable"`
	Local       bool          `json:"local,omitempty"` // closure registered by the producing process
	Arguments   []codec.Value `json:"args"`
	EnqueuedAt  time.Time     `json:"enqueued_at"`
}

func newItem(queue, key string, args []codec.Value, local bool) *WorkItem {
	if args == nil {
		args = []codec.Value{}
	}
	return &WorkItem{
		ID:          uuid.NewString(),
		Queue:       queue,
		CallableKey: key,
		Local:       local,
		Arguments:   args,
		EnqueuedAt:  time.Now().UTC(),
	}
}

// buildItem encodes args and wraps them for the named callable. Nothing is
// returned when any argument cannot be encoded.
func buildItem(c *codec.Codec, queue, key string, args []any) (*WorkItem, error) {
	if key == "" {
		return nil, fmt.Errorf("callable key is required")
	}
	enc, err := c.EncodeAll(args)
	if err != nil {
		return nil, err
	}
	return newItem(queue, key, enc, false), nil
}

// EncodeItem encodes a work item into its wire form.
func EncodeItem(w *WorkItem) ([]byte, error) {
	return json.Marshal(w)
}

// DecodeItem decodes the wire form of a work item.
func DecodeItem(data []byte) (*WorkItem, error) {
	var w WorkItem
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedItem, err)
	}
	if w.CallableKey == "" {
		return nil, fmt.Errorf("%w: no callable key", ErrMalformedItem)
	}
	return &w, nil
}

// Status is the lifecycle state recorded for a work item.
type Status string

const (
	StatusCreated   Status = "created"
	StatusPending   Status = "pending"
	StatusDequeued  Status = "dequeued"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// TaskRecord is the persisted lifecycle of a work item.
type TaskRecord struct {
	ID         string // work item ID
	Callable   string // callable key
	Queue      string
	ArgsJSON   string // encoded arguments as JSON
	Status     Status
	ErrorMsg   *string // last error message, if any
	CreatedAt  time.Time
	EnqueuedAt *time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// OutcomeKind classifies what ExecuteNext did.
type OutcomeKind int

const (
	// OutcomeNone: nothing was popped because the store failed.
	OutcomeNone OutcomeKind = iota
	OutcomeSucceeded
	// OutcomeFailed: the callable returned an error or panicked.
	OutcomeFailed
	// OutcomeCorrupt: the item or an argument could not be decoded, or did
	// not fit the callable's parameters.
	OutcomeCorrupt
	// OutcomeNotFound: the callable key is not registered here.
	OutcomeNotFound
	// OutcomeEmpty: the wait elapsed with nothing to pop.
	OutcomeEmpty
	// OutcomeCanceled: the context ended the wait before anything was popped.
	OutcomeCanceled
)

var outcomeNames = map[OutcomeKind]string{
	OutcomeNone:      "none",
	OutcomeSucceeded: "succeeded",
	OutcomeFailed:    "failed",
	OutcomeCorrupt:   "corrupt",
	OutcomeNotFound:  "not_found",
	OutcomeEmpty:     "empty",
	OutcomeCanceled:  "canceled",
}

func (k OutcomeKind) String() string {
	if s, ok := outcomeNames[k]; ok {
		return s
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome reports one ExecuteNext call. Item is nil when nothing was popped
// or the payload was not a work item at all.
type Outcome struct {
	Kind     OutcomeKind
	Item     *WorkItem
	Err      error
	Duration time.Duration
}

// Executed reports whether an item was popped and consumed.
func (o Outcome) Executed() bool {
	switch o.Kind {
	case OutcomeSucceeded, OutcomeFailed, OutcomeCorrupt, OutcomeNotFound:
		return true
	}
	return false
}
