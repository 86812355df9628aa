package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"remindbot/internal/reminder"
	"remindbot/internal/scheduler"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type sent struct {
	to   string
	text string
	opt  *tele.SendOptions
}

type fakeAPI struct {
	mu       sync.Mutex
	sent     []sent
	nextID   int
	sendErr  map[string]error // by recipient
	editErr  error
	chatErr  map[int64]error
	members  map[int64]*tele.ChatMember // by user id
	commands int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{sendErr: map[string]error{}, chatErr: map[int64]error{}, members: map[int64]*tele.ChatMember{}}
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErr[to.Recipient()]; err != nil {
		return nil, err
	}
	so, _ := opts[0].(*tele.SendOptions)
	f.sent = append(f.sent, sent{to: to.Recipient(), text: what.(string), opt: so})
	f.nextID++
	return &tele.Message{ID: f.nextID}, nil
}

func (f *fakeAPI) Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error) {
	return nil, f.editErr
}

func (f *fakeAPI) Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error { return nil }

func (f *fakeAPI) ChatByID(id int64) (*tele.Chat, error) {
	if err := f.chatErr[id]; err != nil {
		return nil, err
	}
	return &tele.Chat{ID: id}, nil
}

func (f *fakeAPI) ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error) {
	u := user.(*tele.User)
	if m, ok := f.members[u.ID]; ok {
		return m, nil
	}
	return &tele.ChatMember{Role: tele.Member}, nil
}

func (f *fakeAPI) SetCommands(opts ...interface{}) error {
	f.commands++
	return nil
}

func rec() reminder.Record {
	return reminder.Record{ID: "r1", Text: "stand <up>", AuthorID: 7, AuthorName: "Ana", ScopeID: -100, DestinationID: "-100", DueAt: 1}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want error
	}{
		{tele.ErrChatNotFound, scheduler.ErrTargetGone},
		{tele.ErrKickedFromGroup, scheduler.ErrTargetGone},
		{tele.ErrBlockedByUser, scheduler.ErrTargetGone},
		{tele.NewError(400, "Bad Request: not enough rights to send text messages to the chat"), scheduler.ErrPermissionDenied},
		{tele.NewError(403, "Forbidden: something new"), scheduler.ErrPermissionDenied},
		{tele.NewError(502, "Bad Gateway"), scheduler.ErrTransport},
		{errors.New("dial tcp: i/o timeout"), scheduler.ErrTransport},
		{context.DeadlineExceeded, scheduler.ErrTransport},
	}
	for _, tt := range tests {
		got := classify(tt.err)
		if !errors.Is(got, tt.want) {
			t.Fatalf("classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
		if !errors.Is(got, tt.err) {
			t.Fatalf("classify(%v) lost the cause", tt.err)
		}
	}
	assert.NoError(t, classify(nil))
}

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"short"}, splitTelegramText("short", 10, ""))

	long := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	assert.Equal(t, []string{"aaaaaa", "bbbbbb"}, splitTelegramText(long, 10, ""))

	html := "hello wo <b>x</b>"
	assert.Equal(t, []string{"hello wo ", "<b>x</b>"}, splitTelegramText(html, 10, "HTML"))
}

func TestProbe(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	a := newAdapter(Config{}, api, logx.Nop())
	ctx := context.Background()

	require.NoError(t, a.Probe(ctx, rec(), "-100"))

	api.chatErr[-555] = tele.ErrChatNotFound
	assert.ErrorIs(t, a.Probe(ctx, rec(), "-555:3"), scheduler.ErrTargetGone)
	assert.ErrorIs(t, a.Probe(ctx, rec(), "garbage"), scheduler.ErrTargetGone)

	api.members[7] = &tele.ChatMember{Role: tele.Left}
	assert.ErrorIs(t, a.Probe(ctx, rec(), "-100"), scheduler.ErrTargetGone)

	api.chatErr[-100] = tele.NewError(500, "Internal Server Error")
	assert.ErrorIs(t, a.Probe(ctx, rec(), "-100"), scheduler.ErrTransport)
}

func TestDispatchAndNotify(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	a := newAdapter(Config{}, api, logx.Nop())
	ctx := context.Background()

	r := rec()
	r.Interval = "1 day"
	require.NoError(t, a.Dispatch(ctx, r, "-100:4"))
	require.Len(t, api.sent, 1)
	assert.Equal(t, "-100", api.sent[0].to)
	assert.Equal(t, 4, api.sent[0].opt.ThreadID)
	assert.Contains(t, api.sent[0].text, `<a href="tg://user?id=7">Ana</a>`)
	assert.Contains(t, api.sent[0].text, "stand &lt;up&gt;")
	assert.Contains(t, api.sent[0].text, "Repeats every 1 day")

	api.sendErr["-200"] = tele.NewError(400, "Bad Request: not enough rights to send text messages to the chat")
	assert.ErrorIs(t, a.Dispatch(ctx, r, "-200"), scheduler.ErrPermissionDenied)

	api.sendErr["7"] = tele.ErrBlockedByUser
	assert.NotPanics(t, func() { a.NotifyFailure(ctx, r, "-200") })
	delete(api.sendErr, "7")
	a.NotifyFailure(ctx, r, "-200")
	last := api.sent[len(api.sent)-1]
	assert.Equal(t, "7", last.to)
	assert.Contains(t, last.text, "missing permissions")
}

func TestEditTextMapsDeletedAnchor(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	a := newAdapter(Config{}, api, logx.Nop())
	ref := kit.MessageRef{ChatID: -100, MessageID: 9}

	api.editErr = tele.NewError(400, "Bad Request: message to edit not found")
	assert.ErrorIs(t, a.EditText(context.Background(), ref, "x", nil), kit.ErrAnchorGone)

	api.editErr = tele.NewError(400, "Bad Request: message is not modified")
	assert.NoError(t, a.EditText(context.Background(), ref, "x", nil))
}

func TestMemberOfAndMenu(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	a := newAdapter(Config{}, api, logx.Nop())
	api.members[8] = &tele.ChatMember{Role: tele.Administrator, Title: "Timekeeper"}

	m, err := a.MemberOf(context.Background(), -100, 8)
	require.NoError(t, err)
	assert.True(t, m.Admin())
	assert.True(t, m.HasRole("timekeeper"))

	m, err = a.MemberOf(context.Background(), 8, 8)
	require.NoError(t, err)
	assert.True(t, m.Admin(), "private chat owner")

	cmds := []kit.BotCommand{{Command: "set", Description: "Set a reminder"}}
	require.NoError(t, a.UpdateMenuCommands(context.Background(), cmds))
	require.NoError(t, a.UpdateMenuCommands(context.Background(), cmds))
	assert.Equal(t, 1, api.commands)
}

func TestUpdateConversion(t *testing.T) {
	t.Parallel()
	m := &tele.Message{ID: 3, Text: "/set hi", ThreadID: 2,
		Chat:   &tele.Chat{ID: -100, Type: tele.ChatSuperGroup},
		Sender: &tele.User{ID: 7, FirstName: "Ana", LastName: "Lima"}}
	up, ok := messageUpdate(m)
	require.True(t, ok)
	assert.Equal(t, "Ana Lima", up.Message.FromName)
	assert.True(t, up.Message.IsGroup)
	assert.Equal(t, 2, up.Message.ThreadID)

	_, ok = messageUpdate(&tele.Message{Chat: &tele.Chat{ID: 1}})
	assert.False(t, ok, "no sender")

	cb, ok := callbackUpdate(&tele.Callback{ID: "c", Data: "remind:back", Sender: &tele.User{ID: 7, Username: "ana"}, Message: m})
	require.True(t, ok)
	assert.Equal(t, "@ana", cb.Callback.FromName)
	assert.Equal(t, 3, cb.Callback.MessageID)
}
