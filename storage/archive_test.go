package storage

import (
	"errors"
	"strings"
	"testing"

	"finassist/model"

	"github.com/mattn/go-runewidth"
)

func TestArchive_SaveLoadList(t *testing.T) {
	archive, err := NewArchive(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	conv := &Conversation{
		UserID: "ana",
		Model:  "gpt-4o-mini",
		Messages: []model.Message{
			model.NewUserMessage("¿Cuánto he gastado en comida este mes?"),
			model.NewAssistantMessage("Llevas 210 € en Alimentación."),
		},
	}
	if err := archive.Save(conv); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if conv.ID == "" || conv.Title == "" {
		t.Fatalf("expected generated ID and title, got %+v", conv)
	}

	loaded, err := archive.Load("ana", conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Messages) != 2 || loaded.Messages[1].Content != "Llevas 210 € en Alimentación." {
		t.Errorf("unexpected messages %+v", loaded.Messages)
	}

	list, err := archive.List("ana")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].MessageCount != 2 {
		t.Errorf("unexpected listing %+v", list)
	}

	if _, err := archive.Load("luis", conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("other users must not see the conversation, got %v", err)
	}
	if other, _ := archive.List("luis"); len(other) != 0 {
		t.Errorf("expected empty listing for luis, got %d", len(other))
	}

	if err := archive.Delete("ana", conv.ID); err != nil {
		t.Fatal(err)
	}
	if err := archive.Delete("ana", conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestArchive_SaveRequiresUser(t *testing.T) {
	archive, _ := NewArchive(t.TempDir())
	if err := archive.Save(&Conversation{}); !errors.Is(err, ErrNoUser) {
		t.Errorf("expected ErrNoUser, got %v", err)
	}
}

func TestArchive_Search(t *testing.T) {
	archive, _ := NewArchive(t.TempDir())

	call := model.ToolCall{ID: "c1", Name: "get_budget_summary", Arguments: map[string]any{}}
	conv := &Conversation{
		UserID: "ana",
		Messages: []model.Message{
			model.NewUserMessage("Resumen del PRESUPUESTO"),
			model.NewToolCallMessage("", call),
			model.NewToolMessage(call, `{"presupuesto": 1}`),
			model.NewAssistantMessage("Tu presupuesto está equilibrado."),
		},
	}
	if err := archive.Save(conv); err != nil {
		t.Fatal(err)
	}

	matches, err := archive.Search("ana", "presupuesto")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected user+assistant matches, got %d: %+v", len(matches), matches)
	}
	if matches[0].MessageIndex != 0 || matches[1].MessageIndex != 3 {
		t.Errorf("unexpected indexes %d, %d", matches[0].MessageIndex, matches[1].MessageIndex)
	}

	if empty, _ := archive.Search("ana", "  "); len(empty) != 0 {
		t.Error("blank query should match nothing")
	}
}

func TestGenerateTitle(t *testing.T) {
	long := strings.Repeat("gasto en alimentación ", 5)
	tests := []struct {
		name     string
		messages []model.Message
		check    func(string) bool
	}{
		{
			name:     "short message kept",
			messages: []model.Message{model.NewUserMessage("Hola\nqué tal")},
			check:    func(s string) bool { return s == "Hola qué tal" },
		},
		{
			name:     "long message truncated by width",
			messages: []model.Message{model.NewUserMessage(long)},
			check: func(s string) bool {
				return strings.HasSuffix(s, "...") && runewidth.StringWidth(s) <= titleWidth
			},
		},
		{
			name:     "no user message",
			messages: []model.Message{model.NewAssistantMessage("Hola")},
			check:    func(s string) bool { return strings.HasPrefix(s, "Conversación ") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GenerateTitle(tt.messages); !tt.check(got) {
				t.Errorf("GenerateTitle() = %q", got)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"ana":           "ana",
		"../etc/passwd": "etc-passwd",
		"a b:c":         "a-b-c",
		"":              "conversation",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
