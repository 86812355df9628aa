package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"remindbot/internal/prompt"
	"remindbot/internal/reminder"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type outMsg struct {
	ref  kit.MessageRef
	text string
	opt  *kit.SendOptions
}

type fakeAdapter struct {
	mu      sync.Mutex
	nextID  int
	sent    []outMsg
	edits   []outMsg
	answers []string
	members map[[2]int64]kit.Member
	editErr error
	menu    []kit.BotCommand
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{members: map[[2]int64]kit.Member{}}
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ref := kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.nextID}
	f.sent = append(f.sent, outMsg{ref: ref, text: text, opt: opt})
	return ref, nil
}

func (f *fakeAdapter) EditText(_ context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, outMsg{ref: ref, text: text, opt: opt})
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeAdapter) MemberOf(_ context.Context, chatID, userID int64) (kit.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if chatID == userID {
		return kit.Member{Role: kit.RoleCreator}, nil
	}
	if m, ok := f.members[[2]int64{chatID, userID}]; ok {
		return m, nil
	}
	return kit.Member{Role: kit.RoleMember}, nil
}

func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	f.menu = cmds
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) setMember(chat, user int64, m kit.Member) {
	f.mu.Lock()
	f.members[[2]int64{chat, user}] = m
	f.mu.Unlock()
}

func (f *fakeAdapter) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.text)
	}
	return out
}

func (f *fakeAdapter) lastSent() outMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func (f *fakeAdapter) lastEdit() (outMsg, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return outMsg{}, false
	}
	return f.edits[len(f.edits)-1], true
}

func (f *fakeAdapter) answered(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.answers {
		if a == text {
			return true
		}
	}
	return false
}

func buttons(opt *kit.SendOptions) []string {
	if opt == nil {
		return nil
	}
	rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok || rm == nil {
		return nil
	}
	var out []string
	for _, row := range rm.InlineKeyboard {
		for _, b := range row {
			out = append(out, b.Data)
		}
	}
	return out
}

type fixture struct {
	bot     *Bot
	ad      *fakeAdapter
	store   storage.Store
	updates chan kit.Update
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ad := newFakeAdapter()
	st := storage.WithDefaults(storage.NewMemory(), "UTC")
	t.Cleanup(func() { _ = st.Close() })
	b := New(cfg, Deps{Adapter: ad, Store: st, Now: func() time.Time { return now }})
	return &fixture{bot: b, ad: ad, store: st, updates: make(chan kit.Update, 16)}
}

// start runs the dispatcher until the test ends.
func (f *fixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.bot.Run(ctx, f.updates)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, func() bool { return f.bot.Supervisor() != nil }, time.Second, 5*time.Millisecond)
}

func (f *fixture) say(chat, from int64, text string) {
	f.updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: chat, FromID: from, FromName: "Ann", Text: text, IsGroup: chat != from,
	}}
}

func (f *fixture) click(ref kit.MessageRef, from int64, data string) {
	f.updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb", FromID: from, ChatID: ref.ChatID, MessageID: ref.MessageID, Data: data,
	}}
}

func (f *fixture) waitEdit(t *testing.T, contains string) outMsg {
	t.Helper()
	var got outMsg
	require.Eventually(t, func() bool {
		m, ok := f.ad.lastEdit()
		got = m
		return ok && strings.Contains(m.text, contains)
	}, 2*time.Second, 5*time.Millisecond, "no edit containing %q", contains)
	return got
}

func (f *fixture) openWizard(t *testing.T, chat, from int64, text string) kit.MessageRef {
	t.Helper()
	f.say(chat, from, "/set "+text)
	require.Eventually(t, func() bool {
		s, ok := f.bot.Sessions().Get(from)
		return ok && s.Anchor() != ""
	}, time.Second, 5*time.Millisecond)
	s, _ := f.bot.Sessions().Get(from)

	f.ad.mu.Lock()
	defer f.ad.mu.Unlock()
	for _, m := range f.ad.sent {
		if anchorKey(m.ref) == s.Anchor() {
			require.Contains(t, m.text, text)
			require.Contains(t, buttons(m.opt), "remind:opt:in")
			return m.ref
		}
	}
	t.Fatalf("no anchor message for %q", text)
	return kit.MessageRef{}
}

func (f *fixture) waitButtons(t *testing.T, data string) {
	t.Helper()
	require.Eventually(t, func() bool {
		m, ok := f.ad.lastEdit()
		if !ok {
			return false
		}
		for _, d := range buttons(m.opt) {
			if d == data {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no edit with button %q", data)
}

func request(chat, from int64, args ...string) *Request {
	return &Request{
		Chat:    kit.ChatTarget{ChatID: chat},
		FromID:  from,
		IsGroup: chat != from,
		Text:    strings.Join(args, " "),
		Args:    args,
	}
}

func TestWizardCreatesReminder(t *testing.T) {
	f := newFixture(t, Config{})
	f.start(t)

	ref := f.openWizard(t, 42, 42, "feed the cat")
	f.click(ref, 42, "remind:opt:in")
	f.waitEdit(t, "how long from now")

	f.say(42, 42, "2 hours")
	m := f.waitEdit(t, "Should this reminder repeat?")
	assert.Contains(t, buttons(m.opt), "remind:back")

	f.click(ref, 42, "remind:opt:never")
	f.waitButtons(t, "remind:opt:confirm")
	f.click(ref, 42, "remind:opt:confirm")
	m = f.waitEdit(t, "Reminder set!")
	assert.Empty(t, buttons(m.opt))

	var recs []reminder.Record
	require.Eventually(t, func() bool {
		recs, _ = f.store.ByScope(context.Background(), 42)
		return len(recs) == 1
	}, time.Second, 5*time.Millisecond)
	r := recs[0]
	assert.Equal(t, "feed the cat", r.Text)
	assert.Equal(t, int64(42), r.AuthorID)
	assert.Equal(t, "Ann", r.AuthorName)
	assert.Equal(t, "42", r.DestinationID)
	assert.Equal(t, now.Add(2*time.Hour).Unix(), r.DueAt)
	assert.Empty(t, r.Interval)
	require.Eventually(t, func() bool { return !f.bot.Sessions().IsOpen(42) }, time.Second, 5*time.Millisecond)
}

func TestWizardRejectsBadReply(t *testing.T) {
	f := newFixture(t, Config{})
	f.start(t)

	ref := f.openWizard(t, 42, 42, "stretch")
	f.click(ref, 42, "remind:opt:in")
	f.waitEdit(t, "how long from now")
	f.say(42, 42, "whenever")
	f.waitEdit(t, "Couldn&#39;t understand")
	assert.True(t, f.bot.Sessions().IsOpen(42))
}

func TestSecondSetConflicts(t *testing.T) {
	f := newFixture(t, Config{})
	f.start(t)

	f.openWizard(t, 42, 42, "one")
	f.say(42, 42, "/set two")
	require.Eventually(t, func() bool {
		for _, s := range f.ad.sentTexts() {
			if strings.Contains(s, "already setting a reminder") {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.bot.Sessions().Len())
}

func TestForeignClickIsRejected(t *testing.T) {
	f := newFixture(t, Config{})
	f.start(t)

	ref := f.openWizard(t, -100, 42, "standup")
	f.click(ref, 7, "remind:opt:in")
	require.Eventually(t, func() bool { return f.ad.answered("This isn't your reminder!") }, time.Second, 5*time.Millisecond)
	_, edited := f.ad.lastEdit()
	assert.False(t, edited)
}

func TestCancelReleasesSlot(t *testing.T) {
	f := newFixture(t, Config{})
	f.start(t)

	f.openWizard(t, 42, 42, "water plants")
	f.say(42, 42, "/cancel")
	f.waitEdit(t, "Reminder cancelled!")
	assert.False(t, f.bot.Sessions().IsOpen(42))
	assert.Contains(t, f.ad.sentTexts(), "Reminder setup cancelled.")

	f.openWizard(t, 42, 42, "water plants again")
}

func TestCancelButton(t *testing.T) {
	f := newFixture(t, Config{})
	f.start(t)

	ref := f.openWizard(t, 42, 42, "call mum")
	f.click(ref, 42, "remind:cancel")
	f.waitEdit(t, "Reminder cancelled!")
	assert.False(t, f.bot.Sessions().IsOpen(42))
}

func TestDeletedAnchorEndsWizard(t *testing.T) {
	f := newFixture(t, Config{})
	f.start(t)

	ref := f.openWizard(t, 42, 42, "gone soon")
	f.ad.mu.Lock()
	f.ad.editErr = kit.ErrAnchorGone
	f.ad.mu.Unlock()
	f.click(ref, 42, "remind:opt:on")
	require.Eventually(t, func() bool { return !f.bot.Sessions().IsOpen(42) }, 2*time.Second, 5*time.Millisecond)
	recs, err := f.store.ByScope(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDeletedAnchorWithBadReplyEndsWizard(t *testing.T) {
	f := newFixture(t, Config{})
	f.start(t)

	ref := f.openWizard(t, 42, 42, "vanishing")
	f.click(ref, 42, "remind:opt:in")
	f.waitEdit(t, "how long from now")

	f.ad.mu.Lock()
	f.ad.editErr = kit.ErrAnchorGone
	f.ad.mu.Unlock()
	f.say(42, 42, "garbage")
	require.Eventually(t, func() bool { return !f.bot.Sessions().IsOpen(42) }, time.Second, 5*time.Millisecond)

	f.ad.mu.Lock()
	f.ad.editErr = nil
	f.ad.mu.Unlock()
	f.openWizard(t, 42, 42, "second try")
}

// brokenStore refuses every insert.
type brokenStore struct{ storage.Store }

func (brokenStore) Insert(context.Context, reminder.Record) error { return errors.New("disk full") }

func TestWizardSaveFailureIsNotReportedAsSet(t *testing.T) {
	ad := newFakeAdapter()
	st := storage.WithDefaults(brokenStore{storage.NewMemory()}, "UTC")
	f := &fixture{
		bot:     New(Config{}, Deps{Adapter: ad, Store: st, Now: func() time.Time { return now }}),
		ad:      ad,
		store:   st,
		updates: make(chan kit.Update, 16),
	}
	f.start(t)

	ref := f.openWizard(t, 42, 42, "doomed")
	f.click(ref, 42, "remind:opt:in")
	f.waitEdit(t, "how long from now")
	f.say(42, 42, "1 hour")
	f.waitEdit(t, "Should this reminder repeat?")
	f.click(ref, 42, "remind:opt:never")
	f.waitButtons(t, "remind:opt:confirm")
	f.click(ref, 42, "remind:opt:confirm")

	m := f.waitEdit(t, "Reminder not saved!")
	assert.Empty(t, buttons(m.opt))
	f.ad.mu.Lock()
	defer f.ad.mu.Unlock()
	for _, e := range f.ad.edits {
		assert.NotContains(t, e.text, "Reminder set!")
	}
}

func TestWizardTimesOut(t *testing.T) {
	f := newFixture(t, Config{SessionTimeout: 300 * time.Millisecond})
	f.start(t)

	f.openWizard(t, 42, 42, "slow")
	f.waitEdit(t, "Reminder timed out!")
	require.Eventually(t, func() bool { return !f.bot.Sessions().IsOpen(42) }, time.Second, 5*time.Millisecond)
}

func seed(t *testing.T, st storage.Store, scope int64, authors ...int64) []reminder.Record {
	t.Helper()
	out := make([]reminder.Record, 0, len(authors))
	for i, a := range authors {
		r := reminder.Record{
			ID:            reminder.NewID(),
			Text:          "note " + string(rune('a'+i)),
			AuthorID:      a,
			ScopeID:       scope,
			DestinationID: "-100",
			DueAt:         now.Add(time.Duration(i+1) * time.Hour).Unix(),
			CreatedAt:     now,
		}
		require.NoError(t, st.Insert(context.Background(), r))
		out = append(out, r)
	}
	return out
}

func TestRemovePermissions(t *testing.T) {
	const chat, author, other = int64(-100), int64(1), int64(2)
	cases := []struct {
		name    string
		role    string
		member  kit.Member
		from    int64
		removed bool
	}{
		{"author", "", kit.Member{Role: kit.RoleMember}, author, true},
		{"plain member", "", kit.Member{Role: kit.RoleMember}, other, false},
		{"admin without role", "", kit.Member{Role: kit.RoleAdministrator}, other, true},
		{"admin lacking role", "mods", kit.Member{Role: kit.RoleAdministrator}, other, false},
		{"titled admin", "mods", kit.Member{Role: kit.RoleAdministrator, Title: "Mods"}, other, true},
		{"role by status", "administrator", kit.Member{Role: kit.RoleAdministrator}, other, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			ctx := context.Background()
			seed(t, f.store, chat, author)
			if tc.role != "" {
				require.NoError(t, f.store.PutSettings(ctx, reminder.Settings{ScopeID: chat, ManagerRole: tc.role}))
			}
			f.ad.setMember(chat, tc.from, tc.member)

			require.NoError(t, f.bot.cmdRemove(ctx, request(chat, tc.from, "1")))
			recs, err := f.store.ByScope(ctx, chat)
			require.NoError(t, err)
			if tc.removed {
				assert.Empty(t, recs)
				assert.Contains(t, f.ad.lastSent().text, "Reminder removed!")
			} else {
				assert.Len(t, recs, 1)
				assert.Contains(t, f.ad.lastSent().text, "not yours")
			}
		})
	}
}

func TestRemoveBadOrdinal(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	seed(t, f.store, 42, 42)

	for _, arg := range []string{"0", "x", "2"} {
		require.NoError(t, f.bot.cmdRemove(ctx, request(42, 42, arg)))
	}
	texts := f.ad.sentTexts()
	require.Len(t, texts, 3)
	assert.Contains(t, texts[0], "positive number")
	assert.Contains(t, texts[1], "positive number")
	assert.Contains(t, texts[2], "No reminder exists")
}

func TestListPages(t *testing.T) {
	f := newFixture(t, Config{PageSize: 2})
	ctx := context.Background()
	seed(t, f.store, -100, 1, 2, 1, 2, 1)

	require.NoError(t, f.bot.cmdList(ctx, request(-100, 1)))
	m := f.ad.lastSent()
	assert.Contains(t, m.text, "<b>1:</b>")
	assert.Contains(t, m.text, "<b>2:</b>")
	assert.NotContains(t, m.text, "<b>3:</b>")
	assert.Contains(t, m.text, "Page 1/3")
	assert.Equal(t, []string{"remind:list:1:all:1", "remind:list:1:mine:0"}, buttons(m.opt))

	// "mine" keeps the chat-wide ordinals /remove expects
	require.NoError(t, f.bot.cmdList(ctx, request(-100, 1, "2", "mine")))
	m = f.ad.lastSent()
	assert.Contains(t, m.text, "<b>5:</b>")
	assert.NotContains(t, m.text, "<b>4:</b>")
	assert.Contains(t, m.text, "My reminders")
}

func TestListCallback(t *testing.T) {
	f := newFixture(t, Config{PageSize: 1})
	ctx := context.Background()
	seed(t, f.store, -100, 1, 1)
	ref := kit.MessageRef{ChatID: -100, MessageID: 9}

	req := request(-100, 2)
	req.Callback = &kit.Callback{ID: "x", FromID: 2, ChatID: -100, MessageID: 9}
	require.NoError(t, f.bot.cbList(ctx, req, "1:all:1"))
	assert.True(t, f.ad.answered("This isn't your list!"))

	req = request(-100, 1)
	req.Callback = &kit.Callback{ID: "y", FromID: 1, ChatID: -100, MessageID: 9}
	require.NoError(t, f.bot.cbList(ctx, req, "1:all:1"))
	m, ok := f.ad.lastEdit()
	require.True(t, ok)
	assert.Equal(t, ref, m.ref)
	assert.Contains(t, m.text, "<b>2:</b>")

	assert.Error(t, f.bot.cbList(ctx, req, "garbage"))
}

func TestSettingsCommands(t *testing.T) {
	const chat, admin, user = int64(-100), int64(1), int64(2)
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.ad.setMember(chat, admin, kit.Member{Role: kit.RoleAdministrator})

	require.NoError(t, f.bot.cmdSettings(ctx, request(chat, user, "timezone", "Asia/Tokyo")))
	assert.Contains(t, f.ad.lastSent().text, "must be a chat administrator")

	require.NoError(t, f.bot.cmdSettings(ctx, request(chat, admin, "timezone", "Mars/Base")))
	assert.Contains(t, f.ad.lastSent().text, "No timezone")

	require.NoError(t, f.bot.cmdSettings(ctx, request(chat, admin, "timezone", "Asia/Tokyo")))
	require.NoError(t, f.bot.cmdSettings(ctx, request(chat, admin, "channel", "here")))
	require.NoError(t, f.bot.cmdSettings(ctx, request(chat, admin, "role", "Reminder", "Mods")))

	st, err := f.store.Settings(ctx, chat)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", st.Timezone)
	assert.Equal(t, "-100", st.Destination)
	assert.Equal(t, "Reminder Mods", st.ManagerRole)

	// another chat the admin does not run
	require.NoError(t, f.bot.cmdSettings(ctx, request(chat, admin, "channel", "-200")))
	assert.Contains(t, f.ad.lastSent().text, "No chat -200")

	require.NoError(t, f.bot.cmdSettings(ctx, request(chat, admin, "channel", "none")))
	require.NoError(t, f.bot.cmdSettings(ctx, request(chat, admin, "role", "none")))
	st, err = f.store.Settings(ctx, chat)
	require.NoError(t, err)
	assert.Empty(t, st.Destination)
	assert.Empty(t, st.ManagerRole)

	require.NoError(t, f.bot.cmdSettings(ctx, request(chat, user)))
	assert.Contains(t, f.ad.lastSent().text, "Asia/Tokyo")
}

type fixedStatus struct{ s scheduler.Snapshot }

func (f fixedStatus) Snapshot() scheduler.Snapshot { return f.s }

func TestStatusIsOwnerOnly(t *testing.T) {
	f := newFixture(t, Config{Owners: []int64{5}})
	f.bot.status = fixedStatus{scheduler.Snapshot{Armed: true, Schedule: "0 * * * * *", Dispatched: 3}}
	f.start(t)

	f.say(42, 42, "/status")
	require.Eventually(t, func() bool {
		return len(f.ad.sentTexts()) == 1 && f.ad.lastSent().text == "unauthorized"
	}, time.Second, 5*time.Millisecond)

	f.say(5, 5, "/status")
	require.Eventually(t, func() bool { return strings.Contains(f.ad.lastSent().text, "armed") }, time.Second, 5*time.Millisecond)
	assert.Contains(t, f.ad.lastSent().text, "dispatched")
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t, Config{})
	f.start(t)

	f.say(-100, 1, "/weather")
	f.say(42, 42, "/weather@remindbot")
	require.Eventually(t, func() bool { return len(f.ad.sentTexts()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, kit.ChatTarget{ChatID: 42}, f.ad.lastSent().ref.Target())
}

func TestHelpAndMenu(t *testing.T) {
	f := newFixture(t, Config{Owners: []int64{5}})
	f.start(t)

	f.say(42, 42, "/help")
	require.Eventually(t, func() bool { return len(f.ad.sentTexts()) == 1 }, time.Second, 5*time.Millisecond)
	txt := f.ad.lastSent().text
	assert.Contains(t, txt, "/set")
	assert.NotContains(t, txt, "/status")

	require.NoError(t, f.bot.cmdHelp(context.Background(), request(42, 42, "/rm")))
	assert.Contains(t, f.ad.lastSent().text, "/remove &lt;id&gt;")

	var names []string
	require.Eventually(t, func() bool {
		f.ad.mu.Lock()
		defer f.ad.mu.Unlock()
		names = names[:0]
		for _, c := range f.ad.menu {
			names = append(names, c.Command)
		}
		return len(names) > 0
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, names, "set")
	assert.NotContains(t, names, "status")
}

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in, word, rest string
		ok             bool
	}{
		{"/set buy milk", "set", "buy milk", true},
		{"/SET@RemindBot  buy  milk ", "set", "buy  milk", true},
		{"/list", "list", "", true},
		{"hello", "", "", false},
		{"/", "", "", false},
	}
	for _, tc := range cases {
		word, rest, ok := splitCommand(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.word, word, tc.in)
		assert.Equal(t, tc.rest, rest, tc.in)
	}
	assert.Equal(t, []string{"role", "Reminder Mods"}, tokenizeCommandLine(`role "Reminder Mods"`))
}

func TestSanitizeCommand(t *testing.T) {
	assert.Equal(t, "set_reminder", sanitizeCommand("Set-Reminder"))
	assert.Equal(t, "cmd_1st", sanitizeCommand("1st"))
	assert.Empty(t, sanitizeCommand("!!"))
	assert.Len(t, sanitizeCommand(strings.Repeat("a", 40)), 32)
}

func TestRenderView(t *testing.T) {
	m := prompt.NewMachine("<tea>", prompt.Options{Now: func() time.Time { return now }})
	msg := renderView(m.View(), "")
	assert.Contains(t, msg.Text, "&lt;tea&gt;")
	assert.Equal(t, []string{
		"remind:opt:on", "remind:opt:in", "remind:opt:today", "remind:opt:tomorrow", "remind:cancel",
	}, buttons(msg.Opt))

	m.Cancel()
	done := renderView(m.View(), "")
	assert.Empty(t, buttons(done.Opt))
	assert.Contains(t, done.Text, "Reminder cancelled!")
}
