// internal/game/record.go
package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/models"
)

// ActionRecord is one applied action, in the shape the historian stores.
type ActionRecord struct {
	GameID        uuid.UUID              `json:"game_id"`
	Chat          models.ChatID          `json:"chat_id"`
	ActionIndex   int                    `json:"action_index"`
	ActorUserID   models.UserID          `json:"actor_user_id"`
	ActionType    string                 `json:"action_type"`
	ActionPayload map[string]interface{} `json:"action_payload,omitempty"`
	Timestamp     int64                  `json:"timestamp"`
}

// Record numbers an applied action. Caller holds Mu.
func (g *Game) Record(actor models.UserID, actionType string, payload map[string]interface{}) ActionRecord {
	g.actionIndex++
	return ActionRecord{
		GameID:        g.ID,
		Chat:          g.Chat,
		ActionIndex:   g.actionIndex,
		ActorUserID:   actor,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}
}
