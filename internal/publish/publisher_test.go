package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cheatwatch/internal/core"
	"cheatwatch/internal/logging"
)

type fakeConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	fail     bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection closed")
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func TestPublisher_PublishesQueuedEvents(t *testing.T) {
	conn := &fakeConn{}
	p := New(conn, "cheatwatch.events", logging.Discard())
	p.Start(context.Background())

	ev := core.NewEvent(core.CategoryBrowser, core.KindBlacklist, "History", "mpgh.net", 20)
	p.Emit(ev)
	p.Emit(core.NewEvent(core.CategoryHash, core.KindExactHash, "a.exe", "abc", 40))
	p.Close()

	require.Equal(t, 2, conn.count())
	assert.Equal(t, []string{"cheatwatch.events", "cheatwatch.events"}, conn.subjects)

	var msg Message
	require.NoError(t, json.Unmarshal(conn.payloads[0], &msg))
	assert.Equal(t, "evidence", msg.Type)
	assert.NotEmpty(t, msg.Host)
	assert.Equal(t, ev.ID, msg.Event.ID)
	assert.Equal(t, "mpgh.net", msg.Event.MatchedValue)
	assert.Equal(t, core.KindBlacklist, msg.Event.Kind)
}

func TestPublisher_FullQueueDropsWithoutBlocking(t *testing.T) {
	conn := &fakeConn{}
	p := New(conn, "s", logging.Discard())

	// Not started: nothing drains the queue.
	for i := 0; i < defaultQueueSize+5; i++ {
		p.Emit(core.NewEvent(core.CategoryChat, core.KindKeyword, "log", "aimbot", 15))
	}
	assert.Equal(t, 5, p.Dropped())
	assert.Equal(t, 0, conn.count())
	p.Close()
}

func TestPublisher_PublishErrorsAreNotFatal(t *testing.T) {
	conn := &fakeConn{fail: true}
	p := New(conn, "s", logging.Discard())
	p.Start(context.Background())

	p.Emit(core.NewEvent(core.CategoryChat, core.KindKeyword, "log", "aimbot", 15))
	p.Close()
	assert.Equal(t, 0, conn.count())
}

func TestPublisher_IsAnEmitter(t *testing.T) {
	conn := &fakeConn{}
	p := New(conn, "s", logging.Discard())
	p.Start(context.Background())

	sink := core.NewEventSink()
	out := core.Fanout(sink, p)
	out.Emit(core.NewEvent(core.CategoryHash, core.KindKeyword, "cheat.exe", "cheat", 15))
	p.Close()

	assert.Equal(t, 1, sink.Len())
	assert.Equal(t, 1, conn.count())
}
