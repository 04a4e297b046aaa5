package keyboard

import "testing"

func TestInline(t *testing.T) {
	m := Inline(
		[]Button{Raw("✅ Confirm", "confirmPassport"), Raw("🔄 Retry", "retryPassport")},
		nil,
		[]Button{{Text: "Scoped", Unique: "menu", Data: "open"}},
	)
	if len(m.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2", len(m.InlineKeyboard))
	}
	first := m.InlineKeyboard[0]
	if first[0].Data != "confirmPassport" || first[0].Unique != "" || first[1].Text != "🔄 Retry" {
		t.Fatalf("first row = %+v", first)
	}
	if b := m.InlineKeyboard[1][0]; b.Unique != "menu" || b.Data != "open" {
		t.Fatalf("scoped button = %+v", b)
	}
}
