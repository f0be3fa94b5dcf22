package v1

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{name: "join ok", env: Envelope{V: Version, Type: TypeJoinRoom, Payload: json.RawMessage(`"c1"`)}},
		{name: "typing ok", env: Envelope{V: Version, Type: TypeTyping}},
		{name: "missing version", env: Envelope{Type: TypeJoinRoom}, wantErr: true},
		{name: "wrong version", env: Envelope{V: "v0", Type: TypeJoinRoom}, wantErr: true},
		{name: "missing type", env: Envelope{V: Version}, wantErr: true},
		{name: "server-only type", env: Envelope{V: Version, Type: TypeNewMessage}, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.env.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRoomPayloadUnmarshal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: `"c1"`, want: "c1"},
		{in: `" c2 "`, want: "c2"},
		{in: `{"conversationID":"c3"}`, want: "c3"},
		{in: `{"conversationId":"c4"}`, want: "c4"},
		{in: `{}`, wantErr: true},
		{in: `42`, wantErr: true},
	}

	for _, tc := range cases {
		var p RoomPayload
		err := json.Unmarshal([]byte(tc.in), &p)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("unmarshal(%s): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unmarshal(%s): %v", tc.in, err)
		}
		if p.ConversationID != tc.want {
			t.Fatalf("unmarshal(%s)=%q want=%q", tc.in, p.ConversationID, tc.want)
		}
	}
}
