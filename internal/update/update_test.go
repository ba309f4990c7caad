// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package update

import (
	"testing"
	"time"

	"go.astrophena.name/starhost/internal/testutil"
)

func TestParse(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		raw  string
		want Event
	}{
		"text message": {
			raw: `{
				"update_id": 1,
				"message": {
					"message_id": 42,
					"date": 1700000000,
					"text": "hi",
					"chat": {"id": 100, "type": "private", "username": "alice", "first_name": "Alice"},
					"from": {"id": 100, "is_bot": false, "first_name": "Alice", "last_name": "Liddell", "username": "alice"}
				}
			}`,
			want: Event{
				Kind: KindMessage,
				Message: &Message{
					ID:   42,
					Date: time.Unix(1700000000, 0).UTC(),
					Text: "hi",
					Chat: Chat{ID: 100, Type: "private", Username: "alice", FirstName: "Alice"},
					From: User{ID: 100, Username: "alice", FirstName: "Alice", LastName: "Liddell"},
				},
			},
		},
		"message with missing optional fields": {
			raw: `{"message": {"chat": {"id": 5}}}`,
			want: Event{
				Kind:    KindMessage,
				Message: &Message{Chat: Chat{ID: 5}},
			},
		},
		"photo with caption": {
			raw: `{"message": {
				"message_id": 7,
				"caption": "look",
				"chat": {"id": 5, "type": "group"},
				"photo": [{"file_id": "small"}, {"file_id": "large"}],
				"sticker": {"file_id": "stk"}
			}}`,
			want: Event{
				Kind: KindMessage,
				Message: &Message{
					ID:      7,
					Caption: "look",
					Chat:    Chat{ID: 5, Type: "group"},
					Media:   Media{Photo: []string{"small", "large"}, Sticker: "stk"},
				},
			},
		},
		"callback with message": {
			raw: `{"callback_query": {
				"id": "cb1",
				"data": "yes",
				"chat_instance": "ci",
				"from": {"id": 9, "username": "bob"},
				"message": {"message_id": 3, "date": 1700000000, "text": "Proceed?", "chat": {"id": 9, "type": "private"}}
			}}`,
			want: Event{
				Kind: KindCallback,
				CallbackQuery: &CallbackQuery{
					ID:           "cb1",
					Data:         "yes",
					ChatInstance: "ci",
					From:         User{ID: 9, Username: "bob"},
					Message: &Message{
						ID:   3,
						Date: time.Unix(1700000000, 0).UTC(),
						Text: "Proceed?",
						Chat: Chat{ID: 9, Type: "private"},
					},
				},
			},
		},
		"callback without message": {
			raw: `{"callback_query": {"id": "cb2", "data": "x", "from": {"id": 9}}}`,
			want: Event{
				Kind: KindCallback,
				CallbackQuery: &CallbackQuery{
					ID:   "cb2",
					Data: "x",
					From: User{ID: 9},
				},
			},
		},
		"callback with inaccessible message": {
			raw: `{"callback_query": {"id": "cb3", "from": {"id": 9}, "message": {"message_id": 3, "date": 0, "chat": {"id": 9}}}}`,
			want: Event{
				Kind:          KindCallback,
				CallbackQuery: &CallbackQuery{ID: "cb3", From: User{ID: 9}},
			},
		},
		"neither message nor callback": {
			raw:  `{"update_id": 1, "edited_message": {"text": "x"}}`,
			want: Event{Kind: KindUnknown},
		},
		"malformed JSON": {
			raw:  `{"message": `,
			want: Event{Kind: KindUnknown},
		},
		"not an object": {
			raw:  `[1, 2, 3]`,
			want: Event{Kind: KindUnknown},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := Parse([]byte(tc.raw))
			testutil.AssertEqual(t, string(got.Raw), tc.raw)
			got.Raw = nil
			testutil.AssertEqual(t, got, tc.want)
		})
	}
}

func TestEventChatID(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		raw    string
		wantID int64
		wantOK bool
	}{
		"message":                  {`{"message": {"chat": {"id": 11}}}`, 11, true},
		"callback with message":    {`{"callback_query": {"id": "a", "message": {"date": 1, "chat": {"id": 12}}}}`, 12, true},
		"callback without message": {`{"callback_query": {"id": "a"}}`, 0, false},
		"unknown":                  {`{}`, 0, false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			id, ok := Parse([]byte(tc.raw)).ChatID()
			testutil.AssertEqual(t, id, tc.wantID)
			testutil.AssertEqual(t, ok, tc.wantOK)
		})
	}
}

func TestKindString(t *testing.T) {
	testutil.AssertEqual(t, KindMessage.String(), "message")
	testutil.AssertEqual(t, KindCallback.String(), "callback_query")
	testutil.AssertEqual(t, KindUnknown.String(), "unknown")
}
