package calls

import "testing"

func TestStateValuesAreNonEmpty(t *testing.T) {
	for _, s := range []State{StateRinging, StateInProgress, StateEnded} {
		if s == "" {
			t.Fatalf("expected non-empty state")
		}
	}
}

func TestCall_TranscriptKeepsCallerTurnsInOrder(t *testing.T) {
	c := Call{Turns: []Turn{
		{Role: RoleAssistant, Text: "Здравствуйте"},
		{Role: RoleCaller, Text: "хочу подключить интернет"},
		{Role: RoleAssistant, Text: "Назовите адрес"},
		{Role: RoleCaller, Text: "улица Ленина, дом 5"},
	}}
	want := "хочу подключить интернет\nулица Ленина, дом 5"
	if got := c.Transcript(); got != want {
		t.Fatalf("transcript: got %q want %q", got, want)
	}
}
