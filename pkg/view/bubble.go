// Package view maps chat state to what a message list renders. Nothing here holds
// state or talks to the network; bubbles are recomputed from every snapshot.
package view

import (
	"time"

	"github.com/putto11262002/coursechat/pkg/chat"
)

type Side string

const (
	Own   Side = "own"
	Other Side = "other"
)

const failedLabel = "Failed to send"

// Bubble is one rendered message.
type Bubble struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Side    Side   `json:"side"`
	// AuthorName is only set for other people's messages.
	AuthorName string `json:"author_name,omitempty"`
	// AvatarURL or, when there is none, Initials. Own messages carry neither.
	AvatarURL     string `json:"avatar_url,omitempty"`
	Initials      string `json:"initials,omitempty"`
	TimeLabel     string `json:"time_label"`
	Pending       bool   `json:"pending,omitempty"`
	Failed        bool   `json:"failed,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Present renders entries as seen by the user with id viewerID at time now.
func Present(entries []chat.Entry, viewerID string, now time.Time) []Bubble {
	bubbles := make([]Bubble, 0, len(entries))
	for _, e := range entries {
		bubbles = append(bubbles, present(e, viewerID, now))
	}
	return bubbles
}

func present(e chat.Entry, viewerID string, now time.Time) Bubble {
	b := Bubble{
		ID:        e.ID,
		Content:   e.Content,
		Side:      Other,
		TimeLabel: RelativeTime(e.CreatedAt, now),
		Pending:   e.Status == chat.Pending,
		Failed:    e.Status == chat.Failed,
	}
	if b.Failed {
		b.FailureReason = failedLabel
	}

	if e.UserID == viewerID {
		b.Side = Own
		return b
	}

	var name string
	if e.User != nil {
		name = e.User.FullName
		b.AvatarURL = e.User.AvatarURL
	}
	b.AuthorName = name
	if b.AvatarURL == "" {
		b.Initials = Initials(name)
	}
	return b
}
