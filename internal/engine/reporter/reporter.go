package reporter

import (
	"regexp"
	"strings"

	"github.com/tiger/kobayashi/api/sim"
)

// MaxPlayerTurns is the player turn on which every call ends.
const MaxPlayerTurns = 3

var (
	timelinePattern = regexp.MustCompile(`(?i)when|timeline|eta|hours|today|update`)
	customerPattern = regexp.MustCompile(`(?i)customer|passenger|support|hotline|refund`)
)

const (
	replyTimestamp  = "Can you give a concrete timestamp for your next verified update and confirm who signs off on it?"
	replySpecifics  = "Can you be specific about what your team is doing right now for affected passengers and when they should expect an update?"
	replyOneMessage = "Our sources say customers are still getting mixed answers. What single message should they rely on in the next hour?"
	replyOwnership  = "Our sources say internal teams are giving conflicting guidance. Who is the final decision-maker for public messaging right now?"
)

// Decision is the turn-policy outcome for the next reporter line.
type Decision struct {
	Tone           sim.ReporterTone
	ShouldContinue bool
}

// PlayerTurns counts player turns in history. Callers submit history that
// already includes the reply being answered.
func PlayerTurns(history []sim.DialogueTurn) int {
	count := 0
	for _, turn := range history {
		if turn.Speaker == sim.SpeakerPlayer {
			count++
		}
	}
	return count
}

// Policy maps a player turn count onto the reporter's tone and whether the call continues.
func Policy(playerTurns int) Decision {
	switch {
	case playerTurns <= 1:
		return Decision{Tone: sim.ReporterPressing, ShouldContinue: true}
	case playerTurns < MaxPlayerTurns:
		return Decision{Tone: sim.ReporterSkeptical, ShouldContinue: true}
	default:
		return Decision{Tone: sim.ReporterClosing, ShouldContinue: false}
	}
}

// Name returns the reporter's name from a persona such as "Riley Trent, Metro Ledger reporter".
func Name(persona string) string {
	name, _, _ := strings.Cut(persona, ",")
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return "Reporter"
}

// ClosingLine is the reporter's sign-off.
func ClosingLine(persona string) string {
	return "Thanks. I'll include your statement in our update, " + Name(persona) + " signing off for now."
}

// Respond produces the deterministic reporter reply for req.
func Respond(req sim.ReporterRequest) sim.ReporterResponse {
	decision := Policy(PlayerTurns(req.ConversationHistory))
	var reply string
	switch decision.Tone {
	case sim.ReporterPressing:
		reply = replySpecifics
		if timelinePattern.MatchString(req.UserResponse) {
			reply = replyTimestamp
		}
	case sim.ReporterSkeptical:
		reply = replyOwnership
		if customerPattern.MatchString(req.UserResponse) {
			reply = replyOneMessage
		}
	default:
		reply = ClosingLine(req.Persona)
	}
	return sim.ReporterResponse{
		ReporterReply:  reply,
		TTSText:        reply,
		Tone:           decision.Tone,
		ShouldContinue: decision.ShouldContinue,
		Mode:           sim.ModeMock,
	}
}
