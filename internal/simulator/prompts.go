package simulator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tiger/kobayashi/api/sim"
	"github.com/tiger/kobayashi/internal/engine/reporter"
)

const jsonOnly = "\nReturn JSON only. No markdown, no backticks."

type prompt struct {
	system string
	user   string
}

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func episodePrompt(req sim.GenerateEpisodeRequest) prompt {
	seed := "none"
	if req.Seed != nil {
		seed = fmt.Sprint(*req.Seed)
	}
	lines := []string{
		"Create one PR Meltdown episode JSON.",
		"pack: " + req.Pack,
		"role: " + req.Role,
		"org: " + req.Org,
		"seed: " + seed,
		"Constraints:",
		"- 8 minute scenario (timeRemainingSec 480)",
		"- Include 3 to 5 beats and at least one reporter call beat",
		"- Keep values bounded to the schema ranges",
		"- Use fictional outlets/personas only",
		"Return shape exactly: {",
		`  "episode": {`,
		`    "episodeId": "string", "title": "string", "role": "string", "org": "string", "objective": "string",`,
		`    "initialState": { "publicSentiment": 0-100, "trustScore": 0-100, "legalRisk": "low|medium|high", "newsVelocity": "falling|steady|rising", "timeRemainingSec": 480, "readinessScore": 0-100 },`,
		`    "beats": [{ "id":"string","atSec":number,"feedItems":[{"id":"string","source":"string","text":"string","tone":"neutral|concerned|critical"}],"internalMessages":[{"id":"string","from":"string","text":"string","channel":"string","priority":"low|normal|high"}],"call":{"transcript":"string","ttsText":"string","persona":"string"}? }],`,
		`    "scoringRubric": { "acknowledgment": 0-1, "clarity": 0-1, "actionability": 0-1, "escalation": 0-1, "legalSafety": 0-1, "empathy": 0-1 },`,
		`    "constraints": [{ "id":"string","title":"string","description":"string" }]`,
		"  }",
		"}",
	}
	return prompt{
		system: "You design deterministic corporate crisis simulation episodes for training drills. Keep company and media fictional and non-political. You must return exactly the requested schema keys." + jsonOnly,
		user:   strings.Join(lines, "\n"),
	}
}

func evaluatePrompt(req sim.EvaluateRequest) prompt {
	scene := sim.EvaluateContext{}
	if req.Context != nil {
		scene = *req.Context
	}
	lines := []string{
		"Evaluate the player's action for a PR crisis simulation.",
		"action: " + req.Action,
		"runState: " + mustJSON(req.RunState),
		"context: " + mustJSON(scene),
		"Return JSON with:",
		"- axes: acknowledgment, clarity, actionability, escalation, legalSafety, empathy (0..5)",
		"- coachingNote (short)",
		"- suggestedNextAction (optional short)",
		"- legalRisk (optional enum low|medium|high)",
		"- newsVelocity (optional enum falling|steady|rising)",
	}
	return prompt{
		system: "You are a crisis communications evaluator. Score short responses and return compact JSON with no extra text." + jsonOnly,
		user:   strings.Join(lines, "\n"),
	}
}

func reporterPrompt(req sim.ReporterRequest) prompt {
	turns := reporter.PlayerTurns(req.ConversationHistory)
	history := make([]string, 0, len(req.ConversationHistory))
	for i, turn := range req.ConversationHistory {
		history = append(history, fmt.Sprintf("%d. %s: %s", i+1, strings.ToUpper(string(turn.Speaker)), turn.Text))
	}
	historyText := "(empty)"
	if len(history) > 0 {
		historyText = strings.Join(history, "\n")
	}
	scenario := sim.ScenarioContext{}
	if req.ScenarioContext != nil {
		scenario = *req.ScenarioContext
	}
	lines := []string{
		"Generate the reporter's next reply as JSON.",
		"runId: " + req.RunID,
		"persona: " + req.Persona,
		"latestUserResponse: " + req.UserResponse,
		"scenarioContext: " + mustJSON(scenario),
		"conversationHistory:\n" + historyText,
		fmt.Sprintf("playerTurnsSoFar: %d", turns),
		fmt.Sprintf("mustEndNow: %t", turns >= 3),
		fmt.Sprintf("mustContinueNow: %t", turns < 2),
		"Output fields:",
		"- reporterReply: what the reporter says in transcript form (1-2 short sentences).",
		"- ttsText: speech-optimized version of reporterReply.",
		"- tone: one of neutral|pressing|skeptical|closing.",
		"- shouldContinue: boolean.",
		"Rules:",
		"- If mustEndNow=true then tone must be closing and shouldContinue=false.",
		"- If mustContinueNow=true then shouldContinue=true.",
		"- Keep under 320 characters for reporterReply.",
		"- Never include markdown or speaker labels in reply text.",
	}
	system := strings.Join([]string{
		"You are role-playing a fictional journalist in a corporate crisis simulation.",
		"Stay in-character as the provided reporter persona.",
		"Use one concise follow-up question per turn.",
		"Keep pressure realistic but avoid defamation and avoid real people or politicians.",
		"The call should end naturally in 2-3 reporter responses total.",
	}, " ")
	return prompt{system: system + jsonOnly, user: strings.Join(lines, "\n")}
}

func afterActionPrompt(req sim.AfterActionRequest) prompt {
	lines := []string{
		"Generate an after-action report for this run.",
		"runId: " + req.RunID,
		"finalState: " + mustJSON(req.FinalState),
		"runLog: " + mustJSON(req.RunLog),
		"Return JSON with:",
		"- aarMarkdown (must include sections: Timeline Snapshot, What Went Well, What Missed, Recommended Runbook)",
		"- artifacts with keys: holding_statement, reporter_email, support_script, internal_memo",
	}
	return prompt{
		system: "You generate concise post-incident reports and communication artifacts. Output strictly valid JSON only." + jsonOnly,
		user:   strings.Join(lines, "\n"),
	}
}
