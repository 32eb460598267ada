package store

import (
	"path/filepath"
	"testing"
)

func TestMessageIndexRoundTrip(t *testing.T) {
	idx, err := OpenMessageIndex(filepath.Join(t.TempDir(), "messages.bleve"))
	if err != nil {
		t.Fatalf("OpenMessageIndex: %v", err)
	}
	defer idx.Close()

	msgs := []ChatMessage{
		{ID: "m1", SessionID: "s1", Role: MessageRoleAssistant, Content: "SNAP ABAWD work requirements memo"},
		{ID: "m2", SessionID: "s1", Role: MessageRoleUser, Content: "research medicaid unwinding"},
		{ID: "m3", SessionID: "s2", Role: MessageRoleAssistant, Content: "Section 8 housing voucher termination"},
	}
	for _, m := range msgs {
		if err := idx.IndexMessage(m); err != nil {
			t.Fatalf("IndexMessage(%s): %v", m.ID, err)
		}
	}

	hits, err := idx.SearchMessages("medicaid", 10)
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(hits) != 1 || hits[0].MessageID != "m2" || hits[0].SessionID != "s1" {
		t.Fatalf("unexpected hits: %+v", hits)
	}

	if err := idx.DeleteMessages([]string{"m2"}); err != nil {
		t.Fatalf("DeleteMessages: %v", err)
	}
	hits, err = idx.SearchMessages("medicaid", 10)
	if err != nil {
		t.Fatalf("SearchMessages after delete: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits after delete, got %+v", hits)
	}
}
