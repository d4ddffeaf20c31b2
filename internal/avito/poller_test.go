package avito

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vovarama1992/rental-intake-bot/internal/intake"
)

type fakeAPI struct {
	chats    []Chat
	chatsErr error
	messages map[string][]Message
	msgErr   map[string]error
	sendErr  error

	sent []string
	read []string
}

func (f *fakeAPI) ListChats(context.Context, bool, int) ([]Chat, error) {
	return f.chats, f.chatsErr
}

func (f *fakeAPI) ListMessages(_ context.Context, chatID string, _ int) ([]Message, error) {
	if err := f.msgErr[chatID]; err != nil {
		return nil, err
	}
	return f.messages[chatID], nil
}

func (f *fakeAPI) SendMessage(_ context.Context, chatID, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, chatID+"|"+text)
	return nil
}

func (f *fakeAPI) MarkRead(_ context.Context, chatID string) error {
	f.read = append(f.read, chatID)
	return nil
}

type fakeEngine struct {
	counts  map[string]int
	texts   []string
	origins []intake.Origin
	reply   string
	done    bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{counts: map[string]int{}, reply: "Как вас зовут?"}
}

func (e *fakeEngine) Chat(ctx context.Context, clientID, text string) (intake.TurnResult, error) {
	e.counts[clientID]++
	e.texts = append(e.texts, clientID+"|"+text)
	o, _ := intake.OriginFrom(ctx)
	e.origins = append(e.origins, o)
	return intake.TurnResult{Reply: e.reply, Completed: e.done}, nil
}

func (e *fakeEngine) GetClient(_ context.Context, clientID string) (intake.ClientRecord, error) {
	return intake.ClientRecord{ClientID: clientID, MessageCount: e.counts[clientID]}, nil
}

func chat(id string, user, item int64) Chat {
	return Chat{ID: id, ClientUserID: user, ItemID: item, ClientName: "Мария"}
}

func TestPoller_ProcessesInboundInOrder(t *testing.T) {
	api := &fakeAPI{
		chats: []Chat{chat("c1", 77, 555)},
		messages: map[string][]Message{"c1": {
			{ID: "m2", Direction: DirectionIn, Type: TypeText, Text: "второе", Created: 20},
			{ID: "m0", Direction: DirectionOut, Type: TypeText, Text: "наш ответ", Created: 15},
			{ID: "m1", Direction: DirectionIn, Type: TypeText, Text: "первое", Created: 10},
			{ID: "old", Direction: DirectionIn, Type: TypeText, Text: "прочитано", Created: 5, IsRead: true},
		}},
	}
	eng := newFakeEngine()
	p := NewPoller(api, eng, time.Second, time.Second)

	require.NoError(t, p.Poll(context.Background()))

	assert.Equal(t, []string{
		"avito:77:555|" + firstMessagePrefix + "первое",
		"avito:77:555|второе",
	}, eng.texts)
	assert.Equal(t, intake.Origin{Source: "avito", DisplayName: "Мария", ExternalItemRef: "555"}, eng.origins[0])
	assert.Equal(t, []string{"c1|Как вас зовут?", "c1|Как вас зовут?"}, api.sent)
	assert.Equal(t, []string{"c1", "c1"}, api.read)

	st := p.Stats()
	assert.Equal(t, int64(1), st.ChatsProcessed)
	assert.Equal(t, int64(2), st.MessagesProcessed)
	assert.Equal(t, int64(0), st.Errors)
}

func TestPoller_DeduplicatesAcrossPolls(t *testing.T) {
	api := &fakeAPI{
		chats:    []Chat{chat("c1", 77, 555)},
		messages: map[string][]Message{"c1": {{ID: "m1", Direction: DirectionIn, Type: TypeText, Text: "привет", Created: 1}}},
	}
	eng := newFakeEngine()
	p := NewPoller(api, eng, time.Second, time.Second)

	require.NoError(t, p.Poll(context.Background()))
	require.NoError(t, p.Poll(context.Background()))

	assert.Len(t, eng.texts, 1)
	assert.Len(t, api.sent, 1)
}

func TestPoller_NonTextRendered(t *testing.T) {
	api := &fakeAPI{
		chats:    []Chat{chat("c1", 1, 2)},
		messages: map[string][]Message{"c1": {{ID: "m1", Direction: DirectionIn, Type: "voice", Created: 1}}},
	}
	eng := newFakeEngine()
	eng.counts["avito:1:2"] = 3

	require.NoError(t, NewPoller(api, eng, 0, 0).Poll(context.Background()))
	assert.Equal(t, []string{"avito:1:2|[voice]"}, eng.texts)
}

func TestPoller_CompletionCounted(t *testing.T) {
	api := &fakeAPI{
		chats:    []Chat{chat("c1", 1, 2)},
		messages: map[string][]Message{"c1": {{ID: "m1", Direction: DirectionIn, Type: TypeText, Text: "+7900", Created: 1}}},
	}
	eng := newFakeEngine()
	eng.done = true

	p := NewPoller(api, eng, 0, 0)
	require.NoError(t, p.Poll(context.Background()))
	assert.Equal(t, int64(1), p.Stats().Completions)
}

func TestPoller_ChatErrorsAreIsolated(t *testing.T) {
	api := &fakeAPI{
		chats: []Chat{chat("bad", 1, 1), chat("good", 2, 2)},
		messages: map[string][]Message{
			"good": {{ID: "m1", Direction: DirectionIn, Type: TypeText, Text: "привет", Created: 1}},
		},
		msgErr: map[string]error{"bad": &APIError{Status: 500, Message: "boom"}},
	}
	eng := newFakeEngine()
	p := NewPoller(api, eng, 0, 0)

	require.NoError(t, p.Poll(context.Background()))
	assert.Len(t, eng.texts, 1)
	assert.Equal(t, int64(1), p.Stats().Errors)
	assert.Equal(t, int64(1), p.Stats().ChatsProcessed)
}

func TestPoller_SendFailureRetriesNextPoll(t *testing.T) {
	api := &fakeAPI{
		chats:    []Chat{chat("c1", 1, 1)},
		messages: map[string][]Message{"c1": {{ID: "m1", Direction: DirectionIn, Type: TypeText, Text: "привет", Created: 1}}},
		sendErr:  errors.New("network"),
	}
	eng := newFakeEngine()
	p := NewPoller(api, eng, 0, 0)

	require.NoError(t, p.Poll(context.Background()))
	assert.Empty(t, api.read)
	assert.NotContains(t, p.processed, "m1")
}

func TestPoller_ListChatsFailure(t *testing.T) {
	api := &fakeAPI{chatsErr: ErrRateLimited}
	p := NewPoller(api, newFakeEngine(), 0, 0)

	err := p.Poll(context.Background())
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int64(1), p.Stats().Errors)
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	api := &fakeAPI{}
	p := NewPoller(api, newFakeEngine(), time.Millisecond, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, p.Run(ctx))
}

func TestClientID(t *testing.T) {
	assert.Equal(t, "avito:77:555", ClientID(77, 555))
}
