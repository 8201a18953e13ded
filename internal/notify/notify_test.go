package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"custody-wallet-go/internal/database/databasetest"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	mu    sync.Mutex
	got   []Notification
	err   error
	block chan struct{}
}

func (r *recordingEmitter) Emit(_ context.Context, n Notification) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.err
}

func (r *recordingEmitter) received() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.got...)
}

func TestStoreEmitter_PersistsWithTtl(t *testing.T) {
	db := databasetest.New(t)
	ctx := context.Background()

	e := NewStoreEmitter(db, time.Hour)
	require.NoError(t, e.Emit(ctx, Notification{
		UserId:   "user-1",
		Title:    "Deposit received",
		Message:  "10 USDT on bep20",
		Metadata: map[string]string{"asset": "USDT"},
	}))

	inbox, err := db.ListNotifications(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "Deposit received", inbox[0].Title)
	assert.Equal(t, "USDT", inbox[0].Metadata["asset"])
	assert.WithinDuration(t, time.Now().Add(time.Hour), inbox[0].ExpiresAt, time.Minute)
}

func TestSweeper_DeletesExpired(t *testing.T) {
	db := databasetest.New(t)
	ctx := context.Background()

	e := NewStoreEmitter(db, time.Minute)
	require.NoError(t, e.Emit(ctx, Notification{UserId: "user-1", Title: "a", Message: "a"}))

	s := NewSweeper(db, time.Hour)
	deleted, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	deleted, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestSweeper_StartStop(t *testing.T) {
	s := NewSweeper(databasetest.New(t), 10*time.Millisecond)
	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestDispatcher_DeliversToEveryTarget(t *testing.T) {
	a := &recordingEmitter{}
	b := &recordingEmitter{err: errors.New("broker down")}
	c := &recordingEmitter{}

	d := NewDispatcher(8, 2, Target{"a", a}, Target{"b", b}, Target{"c", c})
	d.Start()

	require.NoError(t, d.Emit(context.Background(), Notification{UserId: "u1", Title: "t"}))
	require.NoError(t, d.Emit(context.Background(), Notification{UserId: "u2", Title: "t"}))
	d.Stop()

	assert.Len(t, a.received(), 2)
	assert.Len(t, b.received(), 2)
	assert.Len(t, c.received(), 2, "a failing target does not stop the others")
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	target := &recordingEmitter{}
	d := NewDispatcher(1, 1, Target{"store", target})

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Emit(context.Background(), Notification{UserId: "u1"}))
	}

	d.Start()
	d.Stop()
	assert.Len(t, target.received(), 1)

	require.NoError(t, d.Emit(context.Background(), Notification{UserId: "late"}))
	assert.Len(t, target.received(), 1)
}

func TestDispatcher_EmitDoesNotBlock(t *testing.T) {
	target := &recordingEmitter{block: make(chan struct{})}
	d := NewDispatcher(1, 1, Target{"slow", target})
	d.Start()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Emit(context.Background(), Notification{UserId: "u1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a slow target")
	}

	close(target.block)
	d.Stop()
}

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func TestAMQPPublisher_Emit(t *testing.T) {
	ch := &fakeChannel{}
	p := newAMQPPublisher(ch, "wallet.notifications")

	require.NoError(t, p.Emit(context.Background(), Notification{UserId: "user-1", Title: "Withdrawal settled", Message: "5 USDT"}))

	assert.Equal(t, "wallet.notifications", ch.exchange)
	assert.Equal(t, "user.user-1", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)

	var body Notification
	require.NoError(t, json.Unmarshal(ch.msg.Body, &body))
	assert.Equal(t, "Withdrawal settled", body.Title)

	ch.err = errors.New("channel closed")
	assert.Error(t, p.Emit(context.Background(), Notification{UserId: "user-1"}))
	assert.NoError(t, p.Close())
}
