package tgui

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestDataRoundTrip(t *testing.T) {
	t.Parallel()
	d := Data("remind", "list", "-100:2")
	ns, action, payload, ok := ParseData(d)
	if !ok || ns != "remind" || action != "list" || payload != "-100:2" {
		t.Fatalf("ParseData(%q) = %q %q %q %v", d, ns, action, payload, ok)
	}
	if _, _, _, ok := ParseData("remind"); ok {
		t.Fatal("data without action must not parse")
	}
	if _, err := CheckedData("remind", "x", strings.Repeat("a", 80)); !errors.Is(err, ErrCallbackDataTooLong) {
		t.Fatalf("want ErrCallbackDataTooLong, got %v", err)
	}
}

func TestPaginate(t *testing.T) {
	t.Parallel()
	items := []int{1, 2, 3, 4, 5, 6, 7}
	tests := []struct {
		index, size int
		want        []int
		label       string
		prev, next  bool
	}{
		{0, 3, []int{1, 2, 3}, "Page 1/3 • 1–3 of 7", false, true},
		{2, 3, []int{7}, "Page 3/3 • 7–7 of 7", true, false},
		{9, 3, []int{7}, "Page 3/3 • 7–7 of 7", true, false},
		{-1, 0, items, "Page 1/1 • 1–7 of 7", false, false},
	}
	for _, tt := range tests {
		p := Paginate(items, tt.index, tt.size)
		if len(p.Items) != len(tt.want) || p.Items[0] != tt.want[0] {
			t.Fatalf("Paginate(%d,%d) items = %v, want %v", tt.index, tt.size, p.Items, tt.want)
		}
		if p.Label() != tt.label || p.HasPrev != tt.prev || p.HasNext != tt.next {
			t.Fatalf("Paginate(%d,%d) = %q prev=%v next=%v", tt.index, tt.size, p.Label(), p.HasPrev, p.HasNext)
		}
	}
	if got := Paginate([]int(nil), 0, 5).Label(); got != "Page 1/1" {
		t.Fatalf("empty label = %q", got)
	}
}

func TestBuilderEscapesHTML(t *testing.T) {
	t.Parallel()
	kb := NewInline().Row(Btn("Cancel", Data("remind", "cancel", "")))
	msg := New().Title("⏰", "a<b").Line("x & y").KV("Time", "<now>").Inline(kb).Build()
	want := "⏰ <b>a&lt;b</b>\nx &amp; y\n• <b>Time</b>: &lt;now&gt;"
	if msg.Text != want {
		t.Fatalf("text = %q, want %q", msg.Text, want)
	}
	rm, ok := msg.Opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok || len(rm.InlineKeyboard) != 1 || rm.InlineKeyboard[0][0].Data != "remind:cancel" {
		t.Fatalf("markup = %#v", msg.Opt.ReplyMarkupAdapter)
	}
	if New().Inline(NewInline()).Build().Opt.ReplyMarkupAdapter != nil {
		t.Fatal("empty keyboard must not be attached")
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	if got := TruncRunes("héllo wörld", 5); got != "héllo…" {
		t.Fatalf("TruncRunes = %q", got)
	}
	if got := TruncRunes("abc", 5); got != "abc" {
		t.Fatalf("TruncRunes = %q", got)
	}
}
