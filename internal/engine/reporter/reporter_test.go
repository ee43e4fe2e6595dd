package reporter

import (
	"strings"
	"testing"

	"github.com/tiger/kobayashi/api/sim"
)

const persona = "Riley Trent, Metro Ledger reporter"

func TestPolicy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		turns int
		want  Decision
	}{
		{0, Decision{Tone: sim.ReporterPressing, ShouldContinue: true}},
		{1, Decision{Tone: sim.ReporterPressing, ShouldContinue: true}},
		{2, Decision{Tone: sim.ReporterSkeptical, ShouldContinue: true}},
		{3, Decision{Tone: sim.ReporterClosing, ShouldContinue: false}},
		{7, Decision{Tone: sim.ReporterClosing, ShouldContinue: false}},
	}
	for _, tc := range cases {
		if got := Policy(tc.turns); got != tc.want {
			t.Fatalf("turns %d: expected %+v, got %+v", tc.turns, tc.want, got)
		}
	}
}

func TestSimulatedExchangeTerminates(t *testing.T) {
	t.Parallel()

	history := []sim.DialogueTurn{{Speaker: sim.SpeakerReporter, Text: "Are you accepting responsibility today?"}}
	replies := []string{
		"We will share an update within two hours.",
		"Passengers can call our support hotline now.",
		"Our head of comms owns all statements.",
		"One more thing.",
	}
	for i, reply := range replies {
		history = append(history, sim.DialogueTurn{Speaker: sim.SpeakerPlayer, Text: reply})
		resp := Respond(sim.ReporterRequest{RunID: "run_1", Persona: persona, UserResponse: reply, ConversationHistory: history})
		if err := resp.Validate(); err != nil {
			t.Fatalf("turn %d: expected valid response, got %v", i+1, err)
		}
		if i+1 >= MaxPlayerTurns && resp.ShouldContinue {
			t.Fatalf("turn %d: expected call to end", i+1)
		}
		if (resp.Tone == sim.ReporterClosing) == resp.ShouldContinue {
			t.Fatalf("turn %d: tone %s inconsistent with shouldContinue=%v", i+1, resp.Tone, resp.ShouldContinue)
		}
		if resp.TTSText != resp.ReporterReply {
			t.Fatalf("turn %d: expected ttsText to mirror the reply", i+1)
		}
		history = append(history, sim.DialogueTurn{Speaker: sim.SpeakerReporter, Text: resp.ReporterReply, Tone: resp.Tone})
	}
}

func TestRespondVariants(t *testing.T) {
	t.Parallel()

	player := func(n int) []sim.DialogueTurn {
		out := make([]sim.DialogueTurn, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, sim.DialogueTurn{Speaker: sim.SpeakerPlayer, Text: "reply"})
		}
		return out
	}
	cases := []struct {
		name     string
		turns    int
		response string
		want     string
	}{
		{name: "pressing timeline", turns: 1, response: "Expect an UPDATE at noon.", want: replyTimestamp},
		{name: "pressing generic", turns: 1, response: "We are on it.", want: replySpecifics},
		{name: "skeptical customers", turns: 2, response: "Refund requests are open.", want: replyOneMessage},
		{name: "skeptical ownership", turns: 2, response: "We are on it.", want: replyOwnership},
		{name: "closing", turns: 3, response: "Thanks.", want: "Thanks. I'll include your statement in our update, Riley Trent signing off for now."},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resp := Respond(sim.ReporterRequest{RunID: "run_1", Persona: persona, UserResponse: tc.response, ConversationHistory: player(tc.turns)})
			if resp.ReporterReply != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, resp.ReporterReply)
			}
		})
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	if got := Name(persona); got != "Riley Trent" {
		t.Fatalf("expected Riley Trent, got %q", got)
	}
	if got := Name("  , anonymous"); got != "Reporter" {
		t.Fatalf("expected fallback name, got %q", got)
	}
	if !strings.Contains(ClosingLine("Sam Ortiz"), "Sam Ortiz signing off") {
		t.Fatalf("expected closing line to name the reporter")
	}
}
