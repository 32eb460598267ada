package store

import (
	"fmt"
	"os"

	"github.com/blevesearch/bleve"
)

// MessageIndex is a bleve full-text index over chat messages, so
// attorneys can find earlier research across sessions.
type MessageIndex struct {
	index bleve.Index
}

// indexedMessage is the document shape stored in bleve.
type indexedMessage struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// MessageHit is one full-text search result.
type MessageHit struct {
	MessageID string  `json:"message_id"`
	SessionID string  `json:"session_id"`
	Fragment  string  `json:"fragment,omitempty"`
	Score     float64 `json:"score"`
}

// OpenMessageIndex opens the index at path, creating it on first use.
func OpenMessageIndex(path string) (*MessageIndex, error) {
	idx, err := bleve.Open(path)
	if err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("open message index: %w", err)
		}
		idx, err = bleve.New(path, bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create message index: %w", err)
		}
	}
	return &MessageIndex{index: idx}, nil
}

// IndexMessage adds or replaces a message document.
func (m *MessageIndex) IndexMessage(msg ChatMessage) error {
	return m.index.Index(msg.ID, indexedMessage{
		SessionID: msg.SessionID,
		Role:      msg.Role,
		Content:   msg.Content,
	})
}

// DeleteMessages removes the given message ids from the index, used when
// a session is deleted.
func (m *MessageIndex) DeleteMessages(ids []string) error {
	batch := m.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return m.index.Batch(batch)
}

// SearchMessages runs a query-string search and returns up to limit hits.
func (m *MessageIndex) SearchMessages(q string, limit int) ([]MessageHit, error) {
	if limit <= 0 {
		limit = 20
	}
	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, limit, 0, false)
	req.Fields = []string{"session_id"}
	req.Highlight = bleve.NewHighlightWithStyle("html")
	res, err := m.index.Search(req)
	if err != nil {
		return nil, err
	}
	hits := make([]MessageHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := MessageHit{MessageID: h.ID, Score: h.Score}
		if sid, ok := h.Fields["session_id"].(string); ok {
			hit.SessionID = sid
		}
		if frags, ok := h.Fragments["content"]; ok && len(frags) > 0 {
			hit.Fragment = frags[0]
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Close releases the index.
func (m *MessageIndex) Close() error {
	return m.index.Close()
}
