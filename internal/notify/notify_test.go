package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/circuit/internal/logger"
	"github.com/yukikurage/circuit/internal/models"
)

type fakeUsers struct {
	users map[uint64]models.User
	err   error
}

func (f *fakeUsers) FindByIDs(_ context.Context, ids []uint64) ([]models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type recordingChannel struct {
	mu       sync.Mutex
	name     string
	messages []Message
	err      error
}

func (r *recordingChannel) Name() string { return r.name }

func (r *recordingChannel) Deliver(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return r.err
}

type panickingChannel struct{}

func (panickingChannel) Name() string { return "panics" }

func (panickingChannel) Deliver(context.Context, Message) error { panic("boom") }

func testUsers() *fakeUsers {
	return &fakeUsers{users: map[uint64]models.User{
		1: {ID: 1, Email: "actor@example.com", Name: "Actor", ProfileState: models.ProfileActive},
		2: {ID: 2, Email: "bob@example.com", Name: "Bob", ProfileState: models.ProfileActive},
		3: {ID: 3, Email: "carol@example.com", Name: "Carol", ProfileState: models.ProfileInactive},
	}}
}

func testLogger() *logger.Logger {
	return logger.New(log.New(io.Discard, "", 0), "", "test")
}

func TestCatalog_RendersLocale(t *testing.T) {
	catalog, err := NewCatalog("en")
	require.NoError(t, err)

	data := map[string]any{"Actor": "Alice", "Title": "Design", "Project": "alpha"}

	title, body := catalog.Render("en", KindTaskAssigned, data)
	assert.Equal(t, "New task assigned", title)
	assert.Equal(t, `Alice assigned you to "Design" in alpha.`, body)

	title, _ = catalog.Render("ja,en;q=0.8", KindTaskAssigned, data)
	assert.Equal(t, "新しいタスクが割り当てられました", title)

	title, _ = catalog.Render("fr", KindTaskAssigned, data)
	assert.Equal(t, "New task assigned", title)

	assert.Equal(t, "unknown.id", catalog.Localize("en", "unknown.id", nil))
}

func TestDispatcher_SkipsActorAndInactiveUsers(t *testing.T) {
	catalog, err := NewCatalog("en")
	require.NoError(t, err)
	ch := &recordingChannel{name: "rec"}
	d := NewDispatcher(testUsers(), catalog, testLogger(), time.Second, ch)

	d.Dispatch(context.Background(), Notification{
		Kind:         KindTaskUpdated,
		ActorID:      1,
		RecipientIDs: []uint64{1, 2, 2, 3},
		Data:         map[string]any{"Actor": "Actor", "Title": "Design"},
		Refs:         map[string]string{"task_id": "7"},
	})
	d.Wait()

	require.Len(t, ch.messages, 1)
	msg := ch.messages[0]
	assert.Equal(t, []uint64{2}, msg.RecipientIDs())
	assert.Equal(t, "Task updated", msg.Title)
	assert.Equal(t, "7", msg.Refs["task_id"])
}

func TestDispatcher_UsesRequestLocale(t *testing.T) {
	catalog, err := NewCatalog("en")
	require.NoError(t, err)
	ch := &recordingChannel{name: "rec"}
	d := NewDispatcher(testUsers(), catalog, testLogger(), time.Second, ch)

	ctx := WithLocale(context.Background(), "ja")
	d.Dispatch(ctx, Notification{Kind: KindTaskUpdated, ActorID: 1, RecipientIDs: []uint64{2}})
	d.Wait()

	require.Len(t, ch.messages, 1)
	assert.Equal(t, "タスクが更新されました", ch.messages[0].Title)
}

func TestDispatcher_FailuresAreSwallowed(t *testing.T) {
	catalog, err := NewCatalog("en")
	require.NoError(t, err)
	failing := &recordingChannel{name: "failing", err: errors.New("gateway down")}
	after := &recordingChannel{name: "after"}
	d := NewDispatcher(testUsers(), catalog, testLogger(), time.Second, failing, panickingChannel{}, after)

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, Notification{Kind: KindAnnouncement, ActorID: 1, RecipientIDs: []uint64{2}})
	// The originating request finishing must not cancel delivery.
	cancel()
	d.Wait()

	assert.Len(t, failing.messages, 1)
	assert.Len(t, after.messages, 1)
}

func TestDispatcher_LookupFailureDropsNotification(t *testing.T) {
	ch := &recordingChannel{name: "rec"}
	d := NewDispatcher(&fakeUsers{err: errors.New("db gone")}, nil, testLogger(), time.Second, ch)

	d.Dispatch(context.Background(), Notification{Kind: KindAnnouncement, RecipientIDs: []uint64{2}})
	d.Wait()

	assert.Empty(t, ch.messages)
}

func TestDispatcher_NilIsNoop(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(context.Background(), Notification{Kind: KindAnnouncement, RecipientIDs: []uint64{2}})
	d.Wait()
}

type fakeTokens struct {
	tokens []models.PushToken
}

func (f *fakeTokens) ListPushTokens(_ context.Context, userIDs []uint64) ([]models.PushToken, error) {
	var out []models.PushToken
	for _, t := range f.tokens {
		for _, id := range userIDs {
			if t.UserID == id {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func TestPushChannel_PostsTokensToGateway(t *testing.T) {
	var got pushRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "/send", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tokens := &fakeTokens{tokens: []models.PushToken{
		{UserID: 2, Token: "tok-b"},
		{UserID: 9, Token: "tok-other"},
	}}
	p := NewPushChannel(srv.URL, "secret", tokens, time.Second)

	err := p.Deliver(context.Background(), Message{
		Kind:       KindTaskAssigned,
		Title:      "t",
		Body:       "b",
		Refs:       map[string]string{"task_id": "3"},
		Recipients: []Recipient{{ID: 2}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, []string{"tok-b"}, got.Tokens)
	assert.Equal(t, "task_assigned", got.Data["kind"])
	assert.Equal(t, "3", got.Data["task_id"])
}

func TestPushChannel_GatewayErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewPushChannel(srv.URL, "", &fakeTokens{tokens: []models.PushToken{{UserID: 2, Token: "x"}}}, time.Second)
	err := p.Deliver(context.Background(), Message{Recipients: []Recipient{{ID: 2}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestPushChannel_NoTokensSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	p := NewPushChannel(srv.URL, "", &fakeTokens{}, time.Second)
	require.NoError(t, p.Deliver(context.Background(), Message{Recipients: []Recipient{{ID: 2}}}))
	assert.False(t, called)
}

func TestStreamHub_DeliversToSubscribersOnly(t *testing.T) {
	hub := NewStreamHub(1)
	bob, unsubBob := hub.Subscribe(2)
	defer unsubBob()
	carol, unsubCarol := hub.Subscribe(3)
	defer unsubCarol()

	err := hub.Deliver(context.Background(), Message{Kind: KindAnnouncement, Title: "hi", Recipients: []Recipient{{ID: 2}}})
	require.NoError(t, err)

	select {
	case ev := <-bob:
		assert.Equal(t, "hi", ev.Title)
	default:
		t.Fatal("expected an event for bob")
	}
	select {
	case <-carol:
		t.Fatal("carol should not receive bob's event")
	default:
	}
}

func TestStreamHub_FullBufferDoesNotBlock(t *testing.T) {
	hub := NewStreamHub(1)
	_, unsub := hub.Subscribe(2)
	defer unsub()

	msg := Message{Recipients: []Recipient{{ID: 2}}}
	require.NoError(t, hub.Deliver(context.Background(), msg))
	assert.Error(t, hub.Deliver(context.Background(), msg))
}

func TestStreamHub_UnsubscribeAndClose(t *testing.T) {
	hub := NewStreamHub(4)
	ch, unsub := hub.Subscribe(2)
	assert.Equal(t, 1, hub.Subscribers(2))

	unsub()
	unsub()
	assert.Equal(t, 0, hub.Subscribers(2))
	_, open := <-ch
	assert.False(t, open)

	other, _ := hub.Subscribe(5)
	hub.Close()
	_, open = <-other
	assert.False(t, open)

	late, _ := hub.Subscribe(6)
	_, open = <-late
	assert.False(t, open)
}

func TestEmailChannel_OnePersonalizationPerRecipient(t *testing.T) {
	e := NewEmailChannel("key", "Circuit", "noreply@example.com", "Circuit")

	m := e.prepare(Message{
		Title: "Task updated",
		Body:  "body",
		Recipients: []Recipient{
			{ID: 2, Email: "bob@example.com", Name: "Bob"},
			{ID: 4},
			{ID: 3, Email: "carol@example.com"},
		},
	})
	require.NotNil(t, m)
	assert.Equal(t, "[Circuit] Task updated", m.Subject)
	require.Len(t, m.Personalizations, 2)
	assert.Equal(t, "bob@example.com", m.Personalizations[0].To[0].Address)
	assert.Equal(t, "carol@example.com", m.Personalizations[1].To[0].Address)

	assert.Nil(t, e.prepare(Message{Recipients: []Recipient{{ID: 4}}}))
}
