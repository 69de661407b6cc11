package domain

import "testing"

func TestNewConversation_Defaults(t *testing.T) {
	conv := NewConversation("user-1", "", "")

	if conv.Mode != ModeOpenChat {
		t.Errorf("expected OPEN_CHAT, got %s", conv.Mode)
	}
	if conv.Title == "" {
		t.Error("expected default title")
	}
	if conv.ID == "" {
		t.Error("expected ID")
	}
}

func TestParseConversationMode(t *testing.T) {
	tests := []struct {
		in   string
		want ConversationMode
		ok   bool
	}{
		{"OPEN_CHAT", ModeOpenChat, true},
		{" document_qa ", ModeDocumentQA, true},
		{"DOCUMENT_SUMMARY", ModeDocumentSummary, true},
		{"SMALL_TALK", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseConversationMode(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseConversationMode(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("conv-1", RoleUser, "hello")
	if msg.SequenceNumber != 0 {
		t.Error("sequence numbers are assigned by the store")
	}
	if msg.Role != RoleUser || msg.Content != "hello" {
		t.Error("expected role and content to be set")
	}
}
