package realtime

import "context"

// ParticipantChecker decides whether a user may join a conversation room.
// When no checker is configured the gateway accepts every joinRoom.
type ParticipantChecker interface {
	IsParticipant(ctx context.Context, userID, conversationID string) (bool, error)
}

// ParticipantCheckerFunc adapts a function to ParticipantChecker.
type ParticipantCheckerFunc func(ctx context.Context, userID, conversationID string) (bool, error)

// IsParticipant calls f.
func (f ParticipantCheckerFunc) IsParticipant(ctx context.Context, userID, conversationID string) (bool, error) {
	return f(ctx, userID, conversationID)
}
