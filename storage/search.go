package storage

import (
	"strings"
	"time"

	"finassist/model"
)

const previewLength = 100

// MessageMatch is one archived message containing the search query.
type MessageMatch struct {
	ConversationID    string    `json:"conversationId"`
	ConversationTitle string    `json:"conversationTitle"`
	MessageIndex      int       `json:"messageIndex"`
	Role              string    `json:"role"`
	Preview           string    `json:"preview"`
	Timestamp         time.Time `json:"timestamp"`
}

// Search scans the user's archived conversations for messages containing
// query, case-insensitively. Tool and system messages are skipped.
func (a *Archive) Search(userID, query string) ([]MessageMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []MessageMatch{}, nil
	}

	conversations, err := a.List(userID)
	if err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(query)
	matches := []MessageMatch{}

	for _, meta := range conversations {
		conv, err := a.Load(userID, meta.ID)
		if err != nil {
			continue
		}

		for i, msg := range conv.Messages {
			if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
				continue
			}
			if !strings.Contains(strings.ToLower(msg.Content), queryLower) {
				continue
			}

			matches = append(matches, MessageMatch{
				ConversationID:    conv.ID,
				ConversationTitle: conv.Title,
				MessageIndex:      i,
				Role:              msg.Role,
				Preview:           preview(msg.Content),
				Timestamp:         msg.Timestamp,
			})
		}
	}

	return matches, nil
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}
