package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// FormatMessage renders an inbound message as model input: the sender's
// name in a USERNAME tag followed by the text, or a tagged placeholder for
// non-text content. ok is false for messages the model should not see,
// such as service messages and captionless media-group items.
//
// With a non-nil media decoder, images are captioned and voice messages
// transcribed; the result leads the tag body.
func FormatMessage(ctx context.Context, m *Message, media MediaDecoder) (text string, ok bool) {
	if m == nil || (m.MediaGroupID != "" && m.Text == "") || isService(m) {
		return "", false
	}
	in := interpreter{ctx: ctx, media: media}
	return tag("USERNAME", fullName(m)) + "\n" + in.content(m), true
}

type interpreter struct {
	ctx   context.Context
	media MediaDecoder
}

func (in interpreter) image(p *tgbotapi.PhotoSize) string {
	if p == nil || p.FileID == "" || in.media == nil {
		return ""
	}
	return in.media.DescribeImage(in.ctx, p.FileID)
}

// sticker prefers the thumbnail, which is a still image even for animated
// and video stickers.
func (in interpreter) sticker(s *tgbotapi.Sticker) string {
	if s.Thumbnail != nil {
		return in.image(s.Thumbnail)
	}
	return in.image(&tgbotapi.PhotoSize{FileID: s.FileID})
}

func (in interpreter) voice(v *tgbotapi.Voice) string {
	if in.media == nil {
		return ""
	}
	return in.media.TranscribeAudio(in.ctx, v.FileID)
}

func isService(m *Message) bool {
	return m.MessageAutoDeleteTimerChanged != nil ||
		m.NewChatMembers != nil ||
		m.LeftChatMember != nil ||
		m.NewChatTitle != "" ||
		m.NewChatPhoto != nil ||
		m.DeleteChatPhoto ||
		m.GroupChatCreated ||
		m.SuperGroupChatCreated ||
		m.PinnedMessage != nil
}

func fullName(m *Message) string {
	if m.From == nil {
		return ""
	}
	if m.From.LastName == "" {
		return m.From.FirstName
	}
	return m.From.FirstName + " " + m.From.LastName
}

func (in interpreter) content(m *Message) string {
	switch {
	case m.Gift != nil:
		return described("GIFT", in.sticker(&m.Gift.Gift.Sticker), m.Gift.Gift.Sticker.Emoji, m.Gift.Text, m.Text)
	case m.UniqueGift != nil:
		return described("GIFT", in.sticker(&m.UniqueGift.Gift.Model.Sticker), m.UniqueGift.Gift.BaseName, m.UniqueGift.Gift.Name, m.Text)
	case m.Text != "":
		return m.Text
	case m.Animation != nil:
		return described("GIF", in.image(m.Animation.Thumbnail), m.Animation.FileName, m.Caption)
	case m.Audio != nil:
		return tag("AUDIO", m.Audio.FileName, m.Audio.Performer, m.Audio.Title, m.Caption)
	case m.Document != nil:
		return tag("FILE", m.Document.FileName, m.Caption)
	case m.PaidMedia != nil:
		return tag("PAID_MEDIA", m.Caption)
	case m.Photo != nil:
		return described("PHOTO", in.image(largest(m.Photo)), m.Caption)
	case m.Sticker != nil:
		return described("STICKER", in.sticker(m.Sticker), m.Sticker.SetName, m.Sticker.Emoji)
	case m.Story != nil:
		return tag("STORY")
	case m.Video != nil:
		return described("VIDEO", in.image(m.Video.Thumbnail), m.Video.FileName, m.Caption)
	case m.VideoNote != nil:
		return described("VIDEO_MESSAGE", in.image(m.VideoNote.Thumbnail))
	case m.Voice != nil:
		return described("VOICE_MESSAGE", in.voice(m.Voice), m.Caption)
	case m.Contact != nil:
		return tag("CONTACT", m.Contact.FirstName, m.Contact.LastName, m.Contact.PhoneNumber)
	case m.Dice != nil:
		return tag("DICE", m.Dice.Emoji, "result:"+strconv.Itoa(m.Dice.Value))
	case m.Game != nil:
		return tag("GAME", m.Game.Title, m.Game.Description, m.Game.Text)
	case m.Poll != nil:
		options := make([]string, 0, len(m.Poll.Options))
		for _, o := range m.Poll.Options {
			options = append(options, o.Text)
		}
		return tag("POLL", m.Poll.Question+"?", strings.Join(options, ", "))
	case m.Venue != nil:
		return tag("VENUE", m.Venue.Title, m.Venue.Address)
	case m.Location != nil:
		return tag("LOCATION", fmt.Sprintf("%g %g", m.Location.Latitude, m.Location.Longitude))
	default:
		return tag("NOT_PARSED_TEXT")
	}
}

// largest is the biggest size of a photo; the Bot API lists them in
// ascending order.
func largest(sizes []tgbotapi.PhotoSize) *tgbotapi.PhotoSize {
	if len(sizes) == 0 {
		return nil
	}
	return &sizes[len(sizes)-1]
}

// tag joins the non-empty parts with " - " and encloses them in name.
// Empty content renders as a self-closing tag.
func tag(name string, parts ...string) string {
	return enclose(name, joinNonEmpty(" - ", parts...))
}

// described is tag with a decoded description on its own line ahead of the
// metadata.
func described(name, description string, parts ...string) string {
	return enclose(name, joinNonEmpty("\n", description, joinNonEmpty(" - ", parts...)))
}

func enclose(name, body string) string {
	if body == "" {
		return "<" + name + "/>"
	}
	return "<" + name + ">" + body + "</" + name + ">"
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
