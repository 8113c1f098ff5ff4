// Package memory maintains per-session conversation history with
// threshold-triggered summarization, token-budgeted context assembly, and
// pluggable session persistence.
package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Message is one conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the summarization state of a session.
type State string

const (
	// StateActive means the live history is below the summarization
	// threshold.
	StateActive State = "ACTIVE"
	// StateSummarizing means the threshold was crossed and condensation is
	// running. All operations for the session serialize behind it.
	StateSummarizing State = "SUMMARIZING"
)

// Snapshot is the minimal persisted shape of a session: ordered messages
// plus an optional rolling summary. External stores round-trip exactly
// this.
type Snapshot struct {
	SessionID  string    `json:"session_id"`
	Messages   []Message `json:"messages"`
	Summary    string    `json:"summary,omitempty"`
	ExportedAt time.Time `json:"exported_at"`
}

// ConversationStoreConfig tunes history retention.
type ConversationStoreConfig struct {
	// MaxHistory is how many live messages survive a summarization pass.
	MaxHistory int `json:"max_history" yaml:"max_history"`
	// SummarizationThreshold triggers condensation once the live message
	// count exceeds it.
	SummarizationThreshold int `json:"summarization_threshold" yaml:"summarization_threshold"`
	// ContextTokens is the default token budget for GetContext.
	ContextTokens int `json:"context_tokens" yaml:"context_tokens"`
}

// DefaultConversationStoreConfig returns the default retention settings.
func DefaultConversationStoreConfig() ConversationStoreConfig {
	return ConversationStoreConfig{
		MaxHistory:             10,
		SummarizationThreshold: 20,
		ContextTokens:          2000,
	}
}

type session struct {
	mu         sync.Mutex
	messages   []Message
	summary    string
	state      State
	totalAdded int
}

// ConversationStore keeps per-session message history. Operations on
// different sessions proceed concurrently; operations on the same session
// serialize behind the session lock, which also resolves the concurrent
// summarization race by construction. The summary always represents the
// prefix of the conversation, live messages the suffix.
type ConversationStore struct {
	config     ConversationStoreConfig
	summarizer Summarizer
	counter    TokenCounter

	mu       sync.RWMutex
	sessions map[string]*session

	now    func() time.Time
	logger *zap.Logger
}

// NewConversationStore creates a store. A nil summarizer takes the
// deterministic extractive fallback; a nil counter takes the word-count
// heuristic.
func NewConversationStore(config ConversationStoreConfig, summarizer Summarizer, counter TokenCounter, logger *zap.Logger) *ConversationStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConversationStoreConfig()
	if config.MaxHistory <= 0 {
		config.MaxHistory = def.MaxHistory
	}
	if config.SummarizationThreshold <= 0 {
		config.SummarizationThreshold = def.SummarizationThreshold
	}
	if config.ContextTokens <= 0 {
		config.ContextTokens = def.ContextTokens
	}
	if summarizer == nil {
		summarizer = ExtractiveSummarizer{}
	}
	if counter == nil {
		counter = HeuristicCounter{}
	}
	return &ConversationStore{
		config:     config,
		summarizer: summarizer,
		counter:    counter,
		sessions:   make(map[string]*session),
		now:        time.Now,
		logger:     logger,
	}
}

func (s *ConversationStore) session(sessionID string) *session {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess
	}
	sess = &session{state: StateActive}
	s.sessions[sessionID] = sess
	return sess
}

// AddMessage appends a timestamped message, condensing the oldest excess
// messages into the rolling summary once the live count exceeds the
// threshold. Only the most recent MaxHistory messages stay live after a
// pass.
func (s *ConversationStore) AddMessage(ctx context.Context, sessionID, role, content string) error {
	sess := s.session(sessionID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.messages = append(sess.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	})
	sess.totalAdded++

	// The threshold is cumulative: once a conversation has crossed it,
	// every append keeps the live window at MaxHistory. An existing
	// summary counts as having crossed it (imported sessions).
	crossed := sess.totalAdded > s.config.SummarizationThreshold || sess.summary != ""
	if !crossed || len(sess.messages) <= s.config.MaxHistory {
		return nil
	}

	sess.state = StateSummarizing
	defer func() { sess.state = StateActive }()

	cut := len(sess.messages) - s.config.MaxHistory
	toCondense := sess.messages[:cut]

	summary, err := s.summarizer.Summarize(ctx, sess.summary, toCondense)
	if err != nil {
		// Keep ordering intact: fall back rather than dropping the prefix
		// unsummarized.
		s.logger.Warn("summarization failed, using extractive fallback",
			zap.String("session_id", sessionID),
			zap.Error(err))
		summary, _ = ExtractiveSummarizer{}.Summarize(ctx, sess.summary, toCondense)
	}

	sess.summary = summary
	sess.messages = append([]Message(nil), sess.messages[cut:]...)

	s.logger.Info("conversation summarized",
		zap.String("session_id", sessionID),
		zap.Int("condensed", cut),
		zap.Int("live", len(sess.messages)))
	return nil
}

// GetContext assembles the most recent messages fitting the token budget,
// filling from most-recent backward, then prepends the summary as a
// synthetic system message only if it still fits. maxTokens <= 0 takes
// the configured default.
func (s *ConversationStore) GetContext(sessionID string, maxTokens int) []Message {
	if maxTokens <= 0 {
		maxTokens = s.config.ContextTokens
	}
	sess := s.session(sessionID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	var context []Message
	total := 0
	for i := len(sess.messages) - 1; i >= 0; i-- {
		cost := s.counter.Count(sess.messages[i].Content)
		if total+cost > maxTokens {
			break
		}
		context = append([]Message{sess.messages[i]}, context...)
		total += cost
	}

	if sess.summary != "" {
		summaryContent := "Previous conversation summary: " + sess.summary
		if total+s.counter.Count(summaryContent) <= maxTokens {
			context = append([]Message{{Role: "system", Content: summaryContent}}, context...)
		}
	}
	return context
}

// History returns a copy of the live messages for the session.
func (s *ConversationStore) History(sessionID string) []Message {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]Message, len(sess.messages))
	copy(out, sess.messages)
	return out
}

// Summary returns the rolling summary for the session.
func (s *ConversationStore) Summary(sessionID string) string {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.summary
}

// State returns the session's summarization state.
func (s *ConversationStore) State(sessionID string) State {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state
}

// Clear removes the session entirely. This is the only way a session's
// messages are hard-deleted.
func (s *ConversationStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Export captures the session as a persistable snapshot.
func (s *ConversationStore) Export(sessionID string) (Snapshot, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	messages := make([]Message, len(sess.messages))
	copy(messages, sess.messages)
	return Snapshot{
		SessionID:  sessionID,
		Messages:   messages,
		Summary:    sess.summary,
		ExportedAt: s.now(),
	}, true
}

// Import replaces the session's state with the snapshot.
func (s *ConversationStore) Import(snap Snapshot) {
	sess := s.session(snap.SessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.messages = append([]Message(nil), snap.Messages...)
	sess.summary = snap.Summary
	sess.state = StateActive
	sess.totalAdded = len(snap.Messages)
}
