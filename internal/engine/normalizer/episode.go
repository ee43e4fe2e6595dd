package normalizer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tiger/kobayashi/api/sim"
	"github.com/tiger/kobayashi/internal/engine/episode"
	"github.com/tiger/kobayashi/internal/engine/runstate"
	"github.com/tiger/kobayashi/internal/schema"
)

const (
	minLiveBeats       = 3
	maxLiveBeats       = 5
	minLiveRoundSec    = 180
	minBeatAtSec       = 15
	minBeatSpacingSec  = 20
	beatTailMarginSec  = 10
	defaultCallPersona = "Riley Trent, Metro Ledger reporter"
	defaultCallOutlet  = "Metro Ledger"
	defaultQuestion    = "Can you clarify what your team is doing right now for affected passengers?"
	defaultInternal    = "Align legal and comms guidance before the next media cycle."
)

var (
	reporterBeatType = regexp.MustCompile(`report|media|press|call`)
	criticalBeatType = regexp.MustCompile(`critical|alert|escalat`)
)

// Episode accepts a generated episode in strict form, else coerces a loose
// shape onto the deterministic episode for req. The result always carries
// the requested role and org and a derived readiness score.
func (n *Normalizer) Episode(raw []byte, req sim.GenerateEpisodeRequest) (ep sim.Episode, ok bool) {
	defer recoverInto(&ok)

	payload := unwrapEpisode(raw)
	if strict, ok := n.strictEpisode(payload, req); ok {
		return strict, true
	}
	return n.looseEpisode(payload, req)
}

// unwrapEpisode accepts both {"episode": {...}} and a bare episode object.
func unwrapEpisode(raw []byte) []byte {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return raw
	}
	if inner, ok := wrapper["episode"]; ok && strings.HasPrefix(strings.TrimSpace(string(inner)), "{") {
		return inner
	}
	return raw
}

func (n *Normalizer) strictEpisode(raw []byte, req sim.GenerateEpisodeRequest) (sim.Episode, bool) {
	var ep sim.Episode
	if err := n.validator.Decode(schema.Episode, raw, &ep); err != nil {
		return sim.Episode{}, false
	}
	// Short timelines and call-less episodes are rebuilt by the loose path.
	if len(ep.Beats) < minLiveBeats || len(ep.Beats) > maxLiveBeats {
		return sim.Episode{}, false
	}
	if _, ok := episode.FirstCall(ep.Beats); !ok {
		return sim.Episode{}, false
	}
	ep.Role = req.Role
	ep.Org = req.Org
	ep.InitialState = runstate.WithReadiness(ep.InitialState)
	if err := ep.Validate(); err != nil {
		return sim.Episode{}, false
	}
	return ep, true
}

func (n *Normalizer) looseEpisode(raw []byte, req sim.GenerateEpisodeRequest) (sim.Episode, bool) {
	data, ok := decodeObject(raw)
	if !ok {
		return sim.Episode{}, false
	}
	base, err := episode.Generate(req.Pack, req.Role, req.Org, req.Seed)
	if err != nil {
		return sim.Episode{}, false
	}

	looseBeats := data.objects("beats", "timeline", "events")
	target := len(looseBeats)
	if target == 0 {
		target = len(base.Beats)
	}
	target = runstate.Clamp(target, minLiveBeats, maxLiveBeats)
	if target > len(base.Beats) {
		target = len(base.Beats)
	}

	initial := data.child("initialState", "state")
	initialTime := base.InitialState.TimeRemainingSec
	if value, ok := initial.number("timeRemainingSec"); ok {
		initialTime = runstate.Round(value)
	} else if value, ok := data.number("timeRemainingSec"); ok {
		initialTime = runstate.Round(value)
	}
	initialTime = runstate.Clamp(initialTime, minLiveRoundSec, runstate.RoundLengthSec)

	state := sim.RunState{
		PublicSentiment:  base.InitialState.PublicSentiment,
		TrustScore:       base.InitialState.TrustScore,
		LegalRisk:        base.InitialState.LegalRisk,
		NewsVelocity:     base.InitialState.NewsVelocity,
		TimeRemainingSec: initialTime,
	}
	if value, ok := initial.number("publicSentiment", "sentiment"); ok {
		state.PublicSentiment = runstate.Clamp(runstate.Round(value), 0, 100)
	}
	if value, ok := initial.number("trustScore", "trust"); ok {
		state.TrustScore = runstate.Clamp(runstate.Round(value), 0, 100)
	}
	if risk := sim.LegalRisk(initial.str("legalRisk")); risk.Validate() == nil {
		state.LegalRisk = risk
	}
	if velocity := sim.NewsVelocity(initial.str("newsVelocity")); velocity.Validate() == nil {
		state.NewsVelocity = velocity
	}

	beats := make([]sim.Beat, 0, target)
	for i := 0; i < target; i++ {
		var loose object
		if i < len(looseBeats) {
			loose = looseBeats[i]
		}
		beats = append(beats, coerceBeat(base.Beats[i], loose, req.Org, initialTime))
	}
	stabilizeOffsets(beats, initialTime)
	ensureCall(beats, base.Beats)

	candidate := sim.Episode{
		EpisodeID:     firstNonEmpty(data.str("episodeId", "id"), base.EpisodeID),
		Title:         firstNonEmpty(data.str("title", "scenarioTitle"), base.Title),
		Role:          req.Role,
		Org:           req.Org,
		Objective:     firstNonEmpty(data.str("objective", "initialContext"), base.Objective),
		InitialState:  runstate.WithReadiness(state),
		Beats:         beats,
		ScoringRubric: base.ScoringRubric,
		Constraints:   base.Constraints,
	}
	if err := candidate.Validate(); err != nil {
		return sim.Episode{}, false
	}
	if err := n.validator.ValidateValue(schema.Episode, candidate); err != nil {
		return sim.Episode{}, false
	}
	return candidate, true
}

func coerceBeat(base sim.Beat, loose object, org string, initialTime int) sim.Beat {
	if loose == nil {
		return cloneBeat(base)
	}
	beatID := firstNonEmpty(loose.str("id", "beatId"), base.ID)
	beatType := strings.ToLower(loose.str("type", "kind"))

	narrative := sentence(strings.TrimSpace(strings.Join([]string{
		loose.str("triggerDescription", "title", "headline"),
		loose.str("stakeholderImpact", "communicationStrategy"),
	}, " ")))
	feedText := narrative
	if feedText == "" && len(base.FeedItems) > 0 {
		feedText = base.FeedItems[0].Text
	}
	if feedText == "" {
		feedText = fmt.Sprintf("%s faces mounting scrutiny.", org)
	}

	actionItems := strings.Join(loose.stringList("actionItems"), "; ")
	internalText := firstNonEmpty(loose.str("communicationStrategy"), actionItems, loose.str("stakeholderImpact"))
	if internalText == "" && len(base.InternalMessages) > 0 {
		internalText = base.InternalMessages[0].Text
	}
	internalText = sentence(firstNonEmpty(internalText, defaultInternal))

	reporterIntent := loose.str("persona") != "" || loose.str("inquiryFocus") != "" || reporterBeatType.MatchString(beatType)

	feed := sim.FeedItem{ID: beatID + "_feed_01", Source: "Public Feed", Tone: sim.ToneConcerned}
	if len(base.FeedItems) > 0 {
		feed.Source = base.FeedItems[0].Source
		feed.Tone = base.FeedItems[0].Tone
	}
	feed.Text = feedText
	if reporterIntent {
		feed.Source = defaultCallOutlet
	}
	if reporterIntent || criticalBeatType.MatchString(beatType) {
		feed.Tone = sim.ToneCritical
	}

	message := sim.InternalMessage{From: "Ops Lead", Channel: "#incident-war-room", Priority: sim.PriorityNormal}
	if len(base.InternalMessages) > 0 {
		message = base.InternalMessages[0]
	}
	message.ID = beatID + "_im_01"
	message.Text = internalText

	call := base.Call
	if reporterIntent {
		question := sentence(firstNonEmpty(loose.str("inquiryFocus"), loose.str("triggerDescription"), loose.str("title"), defaultQuestion))
		call = &sim.ReporterCall{
			Persona:    firstNonEmpty(loose.str("persona"), defaultCallPersona),
			Transcript: question,
			TTSText:    question,
		}
	} else if call != nil {
		copied := *call
		call = &copied
	}

	atSec := base.AtSec
	if value, ok := loose.number("atSec", "timeElapsedSec", "offsetSec"); ok {
		atSec = runstate.Round(value)
	}
	upper := initialTime - beatTailMarginSec
	if upper < 30 {
		upper = 30
	}

	return sim.Beat{
		ID:               beatID,
		AtSec:            runstate.Clamp(atSec, minBeatAtSec, upper),
		FeedItems:        []sim.FeedItem{feed},
		InternalMessages: []sim.InternalMessage{message},
		Call:             call,
	}
}

// stabilizeOffsets makes offsets strictly increasing, at least
// minBeatSpacingSec apart where the round leaves room.
func stabilizeOffsets(beats []sim.Beat, initialTime int) {
	previous := 0
	for i := range beats {
		maxForBeat := initialTime - (len(beats)-i)*beatTailMarginSec
		if maxForBeat < 30 {
			maxForBeat = 30
		}
		atSec := beats[i].AtSec
		if atSec < previous+minBeatSpacingSec {
			atSec = previous + minBeatSpacingSec
		}
		atSec = runstate.Clamp(atSec, minBeatAtSec, maxForBeat)
		beats[i].AtSec = atSec
		previous = atSec
	}
}

func ensureCall(beats []sim.Beat, baseBeats []sim.Beat) {
	if _, ok := episode.FirstCall(beats); ok {
		return
	}
	baseCall, ok := episode.FirstCall(baseBeats)
	if !ok || len(beats) == 0 {
		return
	}
	index := 1
	if index >= len(beats) {
		index = len(beats) - 1
	}
	copied := *baseCall.Call
	beats[index].Call = &copied
}

func cloneBeat(beat sim.Beat) sim.Beat {
	out := beat
	out.FeedItems = append(make([]sim.FeedItem, 0, len(beat.FeedItems)), beat.FeedItems...)
	out.InternalMessages = append(make([]sim.InternalMessage, 0, len(beat.InternalMessages)), beat.InternalMessages...)
	if beat.Call != nil {
		copied := *beat.Call
		out.Call = &copied
	}
	return out
}
