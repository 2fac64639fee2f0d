package telegram

import (
	"context"
	"encoding/json"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func msg(m tgbotapi.Message) *Message {
	if m.From == nil {
		m.From = &tgbotapi.User{ID: 5, FirstName: "Ann", LastName: "Lee"}
	}
	if m.Chat == nil {
		m.Chat = &tgbotapi.Chat{ID: 5, Type: "private"}
	}
	return &Message{Message: m}
}

// fakeMedia describes every image as images[fileID] and transcribes every
// voice file as audio[fileID].
type fakeMedia struct {
	images map[string]string
	audio  map[string]string
	asked  []string
}

func (f *fakeMedia) DescribeImage(_ context.Context, fileID string) string {
	f.asked = append(f.asked, fileID)
	return f.images[fileID]
}

func (f *fakeMedia) TranscribeAudio(_ context.Context, fileID string) string {
	f.asked = append(f.asked, fileID)
	return f.audio[fileID]
}

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		name string
		in   *Message
		want string
	}{
		{"text", msg(tgbotapi.Message{Text: "hi there"}), "hi there"},
		{"photo with caption", msg(tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{FileID: "p"}}, Caption: "sunset"}), "<PHOTO>sunset</PHOTO>"},
		{"photo without caption", msg(tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{FileID: "p"}}}), "<PHOTO/>"},
		{"sticker", msg(tgbotapi.Message{Sticker: &tgbotapi.Sticker{SetName: "cats", Emoji: "😺"}}), "<STICKER>cats - 😺</STICKER>"},
		{"animation", msg(tgbotapi.Message{Animation: &tgbotapi.Animation{FileName: "a.mp4"}, Caption: "lol"}), "<GIF>a.mp4 - lol</GIF>"},
		{"audio", msg(tgbotapi.Message{Audio: &tgbotapi.Audio{FileName: "s.mp3", Performer: "P", Title: "T"}}), "<AUDIO>s.mp3 - P - T</AUDIO>"},
		{"document", msg(tgbotapi.Message{Document: &tgbotapi.Document{FileName: "doc.pdf"}}), "<FILE>doc.pdf</FILE>"},
		{"video", msg(tgbotapi.Message{Video: &tgbotapi.Video{FileName: "v.mp4"}}), "<VIDEO>v.mp4</VIDEO>"},
		{"video note", msg(tgbotapi.Message{VideoNote: &tgbotapi.VideoNote{FileID: "n"}}), "<VIDEO_MESSAGE/>"},
		{"voice", msg(tgbotapi.Message{Voice: &tgbotapi.Voice{FileID: "v"}}), "<VOICE_MESSAGE/>"},
		{"contact", msg(tgbotapi.Message{Contact: &tgbotapi.Contact{FirstName: "Bo", PhoneNumber: "123"}}), "<CONTACT>Bo - 123</CONTACT>"},
		{"dice", msg(tgbotapi.Message{Dice: &tgbotapi.Dice{Emoji: "🎲", Value: 4}}), "<DICE>🎲 - result:4</DICE>"},
		{"game", msg(tgbotapi.Message{Game: &tgbotapi.Game{Title: "G", Description: "D"}}), "<GAME>G - D</GAME>"},
		{"poll", msg(tgbotapi.Message{Poll: &tgbotapi.Poll{Question: "Tea", Options: []tgbotapi.PollOption{{Text: "yes"}, {Text: "no"}}}}), "<POLL>Tea? - yes, no</POLL>"},
		{"venue before location", msg(tgbotapi.Message{
			Venue:    &tgbotapi.Venue{Title: "Cafe", Address: "Main St"},
			Location: &tgbotapi.Location{Latitude: 1, Longitude: 2},
		}), "<VENUE>Cafe - Main St</VENUE>"},
		{"location", msg(tgbotapi.Message{Location: &tgbotapi.Location{Latitude: 1.5, Longitude: 2.25}}), "<LOCATION>1.5 2.25</LOCATION>"},
		{"unknown", msg(tgbotapi.Message{}), "<NOT_PARSED_TEXT/>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FormatMessage(context.Background(), tt.in, nil)
			if !ok {
				t.Fatal("expected message to be formatted")
			}
			want := "<USERNAME>Ann Lee</USERNAME>\n" + tt.want
			if got != want {
				t.Errorf("expected %q, got %q", want, got)
			}
		})
	}
}

func TestFormatMessageExtensions(t *testing.T) {
	story := msg(tgbotapi.Message{})
	story.Story = &struct{}{}
	if got, _ := FormatMessage(context.Background(), story, nil); got != "<USERNAME>Ann Lee</USERNAME>\n<STORY/>" {
		t.Errorf("unexpected story rendering %q", got)
	}

	gift := msg(tgbotapi.Message{})
	gift.Gift = &GiftInfo{Text: "for you"}
	gift.Gift.Gift.Sticker.Emoji = "🎁"
	if got, _ := FormatMessage(context.Background(), gift, nil); got != "<USERNAME>Ann Lee</USERNAME>\n<GIFT>🎁 - for you</GIFT>" {
		t.Errorf("unexpected gift rendering %q", got)
	}

	paid := msg(tgbotapi.Message{Caption: "exclusive"})
	paid.PaidMedia = &struct{}{}
	if got, _ := FormatMessage(context.Background(), paid, nil); got != "<USERNAME>Ann Lee</USERNAME>\n<PAID_MEDIA>exclusive</PAID_MEDIA>" {
		t.Errorf("unexpected paid media rendering %q", got)
	}
}

func TestFormatMessageIgnored(t *testing.T) {
	tests := []struct {
		name string
		in   *Message
	}{
		{"nil", nil},
		{"media group item without text", msg(tgbotapi.Message{MediaGroupID: "g", Photo: []tgbotapi.PhotoSize{{FileID: "p"}}})},
		{"auto delete timer", msg(tgbotapi.Message{MessageAutoDeleteTimerChanged: &tgbotapi.MessageAutoDeleteTimerChanged{}})},
		{"new members", msg(tgbotapi.Message{NewChatMembers: []tgbotapi.User{{ID: 9}}})},
		{"pinned", msg(tgbotapi.Message{PinnedMessage: &tgbotapi.Message{}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := FormatMessage(context.Background(), tt.in, nil); ok {
				t.Error("expected message to be ignored")
			}
		})
	}
}

func TestFormatMessageFirstNameOnly(t *testing.T) {
	m := msg(tgbotapi.Message{From: &tgbotapi.User{FirstName: "Zed"}, Text: "yo"})
	if got, _ := FormatMessage(context.Background(), m, nil); got != "<USERNAME>Zed</USERNAME>\nyo" {
		t.Errorf("unexpected rendering %q", got)
	}
}

func TestFormatMessageDecodesMedia(t *testing.T) {
	media := &fakeMedia{
		images: map[string]string{"big": "a cat on a roof", "thumb": "a dancing dog", "st-thumb": "a winking fox", "gift": "a teddy bear"},
		audio:  map[string]string{"v": "see you at six"},
	}
	gift := msg(tgbotapi.Message{})
	gift.Gift = &GiftInfo{Text: "for you"}
	gift.Gift.Gift.Sticker = tgbotapi.Sticker{FileID: "gift", Emoji: "🎁"}

	tests := []struct {
		name string
		in   *Message
		want string
	}{
		{"photo uses the largest size", msg(tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "big"}}, Caption: "look"}),
			"<PHOTO>a cat on a roof\nlook</PHOTO>"},
		{"animation thumbnail", msg(tgbotapi.Message{Animation: &tgbotapi.Animation{FileName: "a.mp4", Thumbnail: &tgbotapi.PhotoSize{FileID: "thumb"}}}),
			"<GIF>a dancing dog\na.mp4</GIF>"},
		{"sticker thumbnail", msg(tgbotapi.Message{Sticker: &tgbotapi.Sticker{FileID: "st", SetName: "cats", Emoji: "😉", Thumbnail: &tgbotapi.PhotoSize{FileID: "st-thumb"}}}),
			"<STICKER>a winking fox\ncats - 😉</STICKER>"},
		{"video note thumbnail", msg(tgbotapi.Message{VideoNote: &tgbotapi.VideoNote{FileID: "n", Thumbnail: &tgbotapi.PhotoSize{FileID: "thumb"}}}),
			"<VIDEO_MESSAGE>a dancing dog</VIDEO_MESSAGE>"},
		{"voice transcript", msg(tgbotapi.Message{Voice: &tgbotapi.Voice{FileID: "v"}}),
			"<VOICE_MESSAGE>see you at six</VOICE_MESSAGE>"},
		{"gift sticker", gift, "<GIFT>a teddy bear\n🎁 - for you</GIFT>"},
		{"failed decode keeps metadata", msg(tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{FileID: "unknown"}}, Caption: "sunset"}),
			"<PHOTO>sunset</PHOTO>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FormatMessage(context.Background(), tt.in, media)
			if !ok {
				t.Fatal("expected message to be formatted")
			}
			want := "<USERNAME>Ann Lee</USERNAME>\n" + tt.want
			if got != want {
				t.Errorf("expected %q, got %q", want, got)
			}
		})
	}
}

func TestFormatMessageTextSkipsDecoding(t *testing.T) {
	media := &fakeMedia{}
	FormatMessage(context.Background(), msg(tgbotapi.Message{Text: "hi"}), media)
	FormatMessage(context.Background(), msg(tgbotapi.Message{Video: &tgbotapi.Video{FileName: "v.mp4"}}), media)
	if len(media.asked) != 0 {
		t.Errorf("expected no decode calls, got %v", media.asked)
	}
}

func TestMessageReadsNewThumbnailKey(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"message_id":1,"animation":{"file_id":"a","file_unique_id":"u","width":1,"height":1,"duration":1,"thumbnail":{"file_id":"t","file_unique_id":"tu","width":1,"height":1}}}`), &m)
	if err != nil {
		t.Fatal(err)
	}
	if m.Animation == nil || m.Animation.Thumbnail == nil || m.Animation.Thumbnail.FileID != "t" {
		t.Fatalf("thumbnail not decoded: %+v", m.Animation)
	}

	err = json.Unmarshal([]byte(`{"message_id":2,"sticker":{"file_id":"s","file_unique_id":"u","width":1,"height":1,"thumb":{"file_id":"old","file_unique_id":"ou","width":1,"height":1}},"business_connection_id":"bc"}`), &m)
	if err != nil {
		t.Fatal(err)
	}
	if m.Sticker.Thumbnail == nil || m.Sticker.Thumbnail.FileID != "old" || m.BusinessConnectionID != "bc" {
		t.Errorf("unexpected message %+v", m)
	}
}
