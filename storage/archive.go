package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"finassist/model"

	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
)

// ErrConversationNotFound is returned when an archived conversation does not
// exist or belongs to another user.
var ErrConversationNotFound = errors.New("storage: conversation not found")

const titleWidth = 40

// Conversation is the archived transcript of a finished chat session.
type Conversation struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Title     string          `json:"title"`
	Model     string          `json:"model"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Messages  []model.Message `json:"messages"`
}

// ConversationMetadata is a lightweight version of Conversation for listing
type ConversationMetadata struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
}

// Archive keeps conversations as one JSON file per conversation, grouped in
// a directory per user.
type Archive struct {
	dir string
}

func NewArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &Archive{dir: dir}, nil
}

func (a *Archive) userDir(userID string) string {
	return filepath.Join(a.dir, SanitizeFilename(userID))
}

func (a *Archive) path(userID, id string) string {
	return filepath.Join(a.userDir(userID), SanitizeFilename(id)+".json")
}

// Save writes the conversation, assigning an ID and title when missing.
func (a *Archive) Save(conv *Conversation) error {
	if strings.TrimSpace(conv.UserID) == "" {
		return ErrNoUser
	}
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.Title == "" {
		conv.Title = GenerateTitle(conv.Messages)
	}

	conv.UpdatedAt = time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}

	if err := os.MkdirAll(a.userDir(conv.UserID), 0700); err != nil {
		return fmt.Errorf("failed to create user archive directory: %w", err)
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	// 0600: transcripts contain financial details
	if err := os.WriteFile(a.path(conv.UserID, conv.ID), data, 0600); err != nil {
		return fmt.Errorf("failed to write conversation file: %w", err)
	}

	return nil
}

func (a *Archive) Load(userID, id string) (*Conversation, error) {
	data, err := os.ReadFile(a.path(userID, id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation file: %w", err)
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	if conv.UserID != userID {
		return nil, ErrConversationNotFound
	}

	return &conv, nil
}

// List returns the user's conversations, newest first.
func (a *Archive) List(userID string) ([]ConversationMetadata, error) {
	entries, err := os.ReadDir(a.userDir(userID))
	if errors.Is(err, os.ErrNotExist) {
		return []ConversationMetadata{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	conversations := []ConversationMetadata{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		conv, err := a.Load(userID, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue // Skip corrupted files
		}

		conversations = append(conversations, ConversationMetadata{
			ID:           conv.ID,
			Title:        conv.Title,
			Model:        conv.Model,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			MessageCount: len(conv.Messages),
		})
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})

	return conversations, nil
}

func (a *Archive) Delete(userID, id string) error {
	err := os.Remove(a.path(userID, id))
	if errors.Is(err, os.ErrNotExist) {
		return ErrConversationNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete conversation file: %w", err)
	}
	return nil
}

// SanitizeFilename removes or replaces characters that are invalid in filenames
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ', '\n', '\r':
			return '-'
		}
		return r
	}, name)

	name = strings.Trim(name, "-.")
	if len(name) > 64 {
		name = name[:64]
	}
	if name == "" {
		name = "conversation"
	}
	return name
}

// GenerateTitle derives a title from the first user message, truncated by
// display width so accented and wide characters count correctly.
func GenerateTitle(messages []model.Message) string {
	var first string
	for _, msg := range messages {
		if msg.Role == model.RoleUser {
			first = msg.Content
			break
		}
	}

	first = strings.Join(strings.Fields(first), " ")
	if first == "" {
		return fmt.Sprintf("Conversación %s", time.Now().Format("02/01 15:04"))
	}

	return runewidth.Truncate(first, titleWidth, "...")
}
