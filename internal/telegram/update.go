package telegram

import (
	"encoding/json"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Update is the subset of a Bot API update the bot routes. The library's
// own Update predates business connections, so they are decoded here.
type Update struct {
	UpdateID              int      `json:"update_id"`
	Message               *Message `json:"message,omitempty"`
	BusinessMessage       *Message `json:"business_message,omitempty"`
	EditedBusinessMessage *Message `json:"edited_business_message,omitempty"`
}

// Message extends the library message with fields added to the Bot API
// after it was released.
type Message struct {
	tgbotapi.Message
	BusinessConnectionID string      `json:"business_connection_id,omitempty"`
	Story                *struct{}   `json:"story,omitempty"`
	Gift                 *GiftInfo   `json:"gift,omitempty"`
	UniqueGift           *UniqueGift `json:"unique_gift,omitempty"`
	PaidMedia            *struct{}   `json:"paid_media,omitempty"`
}

type GiftInfo struct {
	Gift struct {
		Sticker tgbotapi.Sticker `json:"sticker"`
	} `json:"gift"`
	Text string `json:"text,omitempty"`
}

type UniqueGift struct {
	Gift struct {
		BaseName string `json:"base_name"`
		Name     string `json:"name"`
		Model    struct {
			Sticker tgbotapi.Sticker `json:"sticker"`
		} `json:"model"`
	} `json:"gift"`
}

type thumbnailed struct {
	Thumbnail *tgbotapi.PhotoSize `json:"thumbnail"`
}

// UnmarshalJSON also reads thumbnails sent under "thumbnail", the key that
// replaced the "thumb" the library decodes.
func (m *Message) UnmarshalJSON(data []byte) error {
	type message Message
	if err := json.Unmarshal(data, (*message)(m)); err != nil {
		return err
	}
	var extra struct {
		Animation *thumbnailed `json:"animation"`
		Sticker   *thumbnailed `json:"sticker"`
		Video     *thumbnailed `json:"video"`
		VideoNote *thumbnailed `json:"video_note"`
	}
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	if m.Animation != nil && extra.Animation != nil && m.Animation.Thumbnail == nil {
		m.Animation.Thumbnail = extra.Animation.Thumbnail
	}
	if m.Sticker != nil && extra.Sticker != nil && m.Sticker.Thumbnail == nil {
		m.Sticker.Thumbnail = extra.Sticker.Thumbnail
	}
	if m.Video != nil && extra.Video != nil && m.Video.Thumbnail == nil {
		m.Video.Thumbnail = extra.Video.Thumbnail
	}
	if m.VideoNote != nil && extra.VideoNote != nil && m.VideoNote.Thumbnail == nil {
		m.VideoNote.Thumbnail = extra.VideoNote.Thumbnail
	}
	return nil
}

func (u *Update) business() *Message {
	if u.BusinessMessage != nil {
		return u.BusinessMessage
	}
	return u.EditedBusinessMessage
}

func (m *Message) chatID() int64 {
	if m.Chat == nil {
		return 0
	}
	return m.Chat.ID
}

func (m *Message) isPrivate() bool {
	return m.Chat != nil && m.Chat.Type == "private"
}

func (m *Message) isGroup() bool {
	return m.Chat != nil && (m.Chat.Type == "group" || m.Chat.Type == "supergroup")
}

// plainText is the text or caption of the message.
func (m *Message) plainText() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}
