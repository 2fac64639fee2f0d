// internal/types/ids.go
package types

import (
	"strconv"

	"github.com/google/uuid"
)

type ChatID int64
type RunID string
type AlarmToken string

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewAlarmToken() AlarmToken {
	return AlarmToken(uuid.New().String())
}

func (c ChatID) String() string {
	return strconv.FormatInt(int64(c), 10)
}

// ParseChatID parses a decimal chat id as used in URLs and CLI arguments.
func ParseChatID(s string) (ChatID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ChatID(id), nil
}
