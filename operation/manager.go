// Package operation ensures only one long running motion owns a component at a time.
package operation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// SingleOperationManager ensures only 1 operation is happening a time
// An operation can be nested, so if there is already an operation in progress,
// it can have sub-operations without an issue.
type SingleOperationManager struct {
	mu        sync.Mutex
	currentOp *anOp
}

// CancelRunning cancel's a current operation unless it's mine.
func (sm *SingleOperationManager) CancelRunning(ctx context.Context) {
	if ctx.Value(somCtxKeySingleOp) != nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.cancelInLock(ctx)
}

// OpRunning returns if there is a current operation.
func (sm *SingleOperationManager) OpRunning() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.currentOp != nil
}

type somCtxKey byte

const somCtxKeySingleOp = somCtxKey(iota)

// New creates a new operation, cancels previous, returns a new context and function to call when done.
func (sm *SingleOperationManager) New(ctx context.Context) (context.Context, func()) {
	// handle nested ops
	if ctx.Value(somCtxKeySingleOp) != nil {
		return ctx, func() {}
	}

	sm.mu.Lock()

	// first cancel any old operation
	sm.cancelInLock(ctx)

	theOp := &anOp{id: uuid.New()}

	ctx = context.WithValue(ctx, somCtxKeySingleOp, theOp)

	theOp.ctx, theOp.cancelFunc = context.WithCancel(ctx)
	sm.currentOp = theOp
	sm.mu.Unlock()

	return theOp.ctx, func() {
		theOp.cancelFunc()
		sm.mu.Lock()
		if theOp == sm.currentOp {
			sm.currentOp = nil
		}
		sm.mu.Unlock()
	}
}

// WaitTillDone calls done every pollTime until it reports true or fails. If the
// operation is cancelled from outside, or by a call that does not start a new
// operation, stop is called before returning.
func (sm *SingleOperationManager) WaitTillDone(
	ctx context.Context,
	pollTime time.Duration,
	done func(ctx context.Context) (bool, error),
	stop func(context.Context) error,
) (err error) {
	ctx, finish := sm.New(ctx)
	defer finish()

	// Defers a function that will stop and clean up if the context errors
	defer func(ctx context.Context) {
		if !errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		sm.mu.Lock()
		myOp := ctx.Value(somCtxKeySingleOp)
		replaced := sm.currentOp != nil && sm.currentOp != myOp
		sm.mu.Unlock()

		if !replaced {
			err = multierr.Combine(err, stop(ctx))
		}
	}(ctx)
	return sm.WaitForSuccess(ctx, pollTime, done)
}

// WaitForSuccess will call testFunc every pollTime until it returns true or an error.
func (sm *SingleOperationManager) WaitForSuccess(
	ctx context.Context,
	pollTime time.Duration,
	testFunc func(ctx context.Context) (bool, error),
) error {
	ctx, finish := sm.New(ctx)
	defer finish()

	for {
		res, err := testFunc(ctx)
		if err != nil {
			return err
		}
		if res {
			return nil
		}

		if !utils.SelectContextOrWait(ctx, pollTime) {
			return ctx.Err()
		}
	}
}

func (sm *SingleOperationManager) cancelInLock(ctx context.Context) {
	myOp := ctx.Value(somCtxKeySingleOp)
	op := sm.currentOp

	if op == nil || myOp == op {
		return
	}

	op.cancelFunc()

	sm.currentOp = nil
}

// ID returns the id of the operation ctx belongs to.
func ID(ctx context.Context) (uuid.UUID, bool) {
	op, ok := ctx.Value(somCtxKeySingleOp).(*anOp)
	if !ok {
		return uuid.Nil, false
	}
	return op.id, true
}

type anOp struct {
	id         uuid.UUID
	ctx        context.Context
	cancelFunc context.CancelFunc
}
