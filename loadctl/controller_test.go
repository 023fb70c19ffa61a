package loadctl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

type stubBackend struct {
	mu       sync.Mutex
	writeErr error
	readErr  error
	reported LoadState
	block    chan struct{}
	writes   []LoadCommand
	closed   bool
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Start(context.Context) error { return nil }

func (b *stubBackend) Write(ctx context.Context, cmd LoadCommand) (WriteResult, error) {
	if nil != b.block {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = append(b.writes, cmd)
	if nil != b.writeErr {
		return WriteResult{}, b.writeErr
	}
	return WriteResult{Commanded: cmd.State()}, nil
}

func (b *stubBackend) Read(context.Context) (LoadState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reported, b.readErr
}

func (b *stubBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func TestControllerSetLoad(t *testing.T) {
	var states []LoadState
	var actions []LoadCommand
	backend := &stubBackend{}
	c := New(backend, Options{
		OnState:  func(s LoadState) { states = append(states, s) },
		OnAction: func(cmd LoadCommand, _ error) { actions = append(actions, cmd) },
	}, zap.NewNop().Sugar())
	assert.Equal(t, StateUnknown, c.State())

	st, err := c.SetLoad(context.Background(), CommandOn)
	require.NoError(t, err)
	assert.Equal(t, StateOn, st)
	st, err = c.SetLoad(context.Background(), CommandOn)
	require.NoError(t, err)
	assert.Equal(t, StateOn, st)

	assert.Equal(t, []LoadState{StateOn}, states, "only changes are reported")
	assert.Equal(t, []LoadCommand{CommandOn, CommandOn}, actions)
}

func TestControllerIOFailureLeavesUnknown(t *testing.T) {
	backend := &stubBackend{}
	c := New(backend, Options{}, zap.NewNop().Sugar())
	_, err := c.SetLoad(context.Background(), CommandOn)
	require.NoError(t, err)

	backend.writeErr = newError(KindIO, "write", errors.New("gone"))
	st, err := c.SetLoad(context.Background(), CommandOff)
	require.Error(t, err)
	assert.True(t, IsIO(err))
	assert.Equal(t, StateUnknown, st)
	assert.Equal(t, StateUnknown, c.State())
}

func TestControllerCorruptResponseKeepsState(t *testing.T) {
	slave := newFakeSlave(1)
	m, _ := newTestModbus(t, slave, ModbusOptions{OnValue: 1, OffValue: 0})
	c := New(m, Options{}, zap.NewNop().Sugar())

	_, err := c.SetLoad(context.Background(), CommandOff)
	require.NoError(t, err)

	echo := EncodeWriteSingle(1, loadRegister, 1)
	for i := range echo {
		for b := 0; b < 8; b++ {
			i, b := i, b
			slave.mu.Lock()
			slave.corrupt = func(resp []byte) []byte {
				resp[i] ^= 1 << uint(b)
				return resp
			}
			slave.mu.Unlock()
			st, err := c.SetLoad(context.Background(), CommandOn)
			require.Error(t, err, "byte %d bit %d", i, b)
			assert.True(t, IsProtocol(err), "byte %d bit %d: %v", i, b, err)
			assert.Equal(t, StateOff, st)
			assert.Equal(t, StateOff, c.State())
		}
	}
}

func TestControllerBusy(t *testing.T) {
	backend := &stubBackend{block: make(chan struct{})}
	c := New(backend, Options{}, zap.NewNop().Sugar())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.SetLoad(context.Background(), CommandOn)
	}()
	require.Eventually(t, func() bool { return 1 == len(c.exec) }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.SetLoad(ctx, CommandOff)
	require.Error(t, err)
	assert.True(t, IsBusy(err))

	close(backend.block)
	<-done
	assert.Equal(t, StateOn, c.State())
}

func TestControllerRefreshAndClose(t *testing.T) {
	backend := &stubBackend{reported: StateOff}
	c := New(backend, Options{Freshness: time.Minute}, zap.NewNop().Sugar())

	st, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateOff, st)

	require.NoError(t, c.Close(context.Background()))
	assert.True(t, backend.closed)
	_, err = c.SetLoad(context.Background(), CommandOn)
	assert.Equal(t, KindClosed, KindOf(err))
	assert.NoError(t, c.Close(context.Background()))
}

func TestControllerCancelAfterRequestKeepsState(t *testing.T) {
	slave := newFakeSlave(1)
	port := &fakePort{respond: slave.reply, delay: 50 * time.Millisecond}
	m, err := NewModbus(newTestSession(port), ModbusOptions{UnitId: 1, LoadRegister: loadRegister, OnValue: 1}, zap.NewNop().Sugar())
	require.NoError(t, err)
	c := New(m, Options{}, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	st, err := c.SetLoad(ctx, CommandOn)
	require.NoError(t, err)
	assert.Equal(t, StateOn, st)
	assert.Equal(t, StateOn, c.State())
	assert.Equal(t, uint16(1), slave.reg(loadRegister))
}

func TestControllerCancelBeforeRequestKeepsState(t *testing.T) {
	slave := newFakeSlave(1)
	m, port := newTestModbus(t, slave, ModbusOptions{OnValue: 1, OffValue: 0})
	c := New(m, Options{}, zap.NewNop().Sugar())
	_, err := c.SetLoad(context.Background(), CommandOff)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st, err := c.SetLoad(ctx, CommandOn)
	require.Error(t, err)
	assert.True(t, IsCanceled(err) || IsBusy(err), "%v", err)
	assert.Equal(t, StateOff, st)
	assert.Equal(t, StateOff, c.State())
	assert.Len(t, port.writes(), 1)
}

func TestControllerNotifiesInOrder(t *testing.T) {
	var mu sync.Mutex
	var last LoadState
	c := New(&stubBackend{}, Options{
		OnState: func(s LoadState) {
			time.Sleep(50 * time.Microsecond)
			mu.Lock()
			last = s
			mu.Unlock()
		},
	}, zap.NewNop().Sugar())

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		st := StateOn
		if 0 == i%2 {
			st = StateOff
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.confirm(st)
		}()
	}
	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, c.State(), last)
}
