package episode

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tiger/kobayashi/api/sim"
)

const (
	minPackBeats = 3
	maxPackBeats = 5
)

//go:embed packs/*.yaml
var packFS embed.FS

// Pack is a hand-authored scenario timeline. Text fields may carry the
// {org} and {orgTag} placeholders.
type Pack struct {
	ID          string           `yaml:"id"`
	Title       string           `yaml:"title"`
	Objective   string           `yaml:"objective"`
	Rubric      packRubric       `yaml:"rubric"`
	Constraints []packConstraint `yaml:"constraints"`
	Beats       []packBeat       `yaml:"beats"`
}

type packRubric struct {
	Acknowledgment float64 `yaml:"acknowledgment"`
	Clarity        float64 `yaml:"clarity"`
	Actionability  float64 `yaml:"actionability"`
	Escalation     float64 `yaml:"escalation"`
	LegalSafety    float64 `yaml:"legal_safety"`
	Empathy        float64 `yaml:"empathy"`
}

type packConstraint struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type packBeat struct {
	ID       string        `yaml:"id"`
	AtSec    int           `yaml:"at_sec"`
	Feed     []packFeed    `yaml:"feed"`
	Messages []packMessage `yaml:"messages"`
	Call     *packCall     `yaml:"call"`
}

type packFeed struct {
	ID     string `yaml:"id"`
	Source string `yaml:"source"`
	Text   string `yaml:"text"`
	Tone   string `yaml:"tone"`
}

type packMessage struct {
	ID       string `yaml:"id"`
	From     string `yaml:"from"`
	Text     string `yaml:"text"`
	Channel  string `yaml:"channel"`
	Priority string `yaml:"priority"`
}

type packCall struct {
	Persona    string `yaml:"persona"`
	Transcript string `yaml:"transcript"`
	TTSText    string `yaml:"tts_text"`
}

var (
	packsOnce sync.Once
	packs     map[string]Pack
	packsErr  error
)

// Packs returns the sorted ids of all embedded scenario packs.
func Packs() ([]string, error) {
	loaded, err := loadPacks()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(loaded))
	for id := range loaded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func lookupPack(id string) (Pack, error) {
	loaded, err := loadPacks()
	if err != nil {
		return Pack{}, err
	}
	pack, ok := loaded[id]
	if !ok {
		return Pack{}, fmt.Errorf("%w: %q", ErrUnknownPack, id)
	}
	return pack, nil
}

func loadPacks() (map[string]Pack, error) {
	packsOnce.Do(func() {
		packs, packsErr = readPacks(packFS)
	})
	return packs, packsErr
}

func readPacks(fsys fs.FS) (map[string]Pack, error) {
	entries, err := fs.Glob(fsys, "packs/*.yaml")
	if err != nil {
		return nil, err
	}
	out := make(map[string]Pack, len(entries))
	for _, name := range entries {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read pack %s: %w", name, err)
		}
		pack, err := ParsePack(raw)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", path.Base(name), err)
		}
		if _, exists := out[pack.ID]; exists {
			return nil, fmt.Errorf("duplicate pack id %q", pack.ID)
		}
		out[pack.ID] = pack
	}
	return out, nil
}

// ParsePack decodes and validates one pack document.
func ParsePack(raw []byte) (Pack, error) {
	var pack Pack
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&pack); err != nil {
		return Pack{}, fmt.Errorf("decode pack: %w", err)
	}
	if err := pack.Validate(); err != nil {
		return Pack{}, err
	}
	return pack, nil
}

// Validate enforces the authoring rules for a timeline: 3..5 beats with
// strictly increasing offsets and at least one reporter call.
func (p Pack) Validate() error {
	if p.ID == "" || p.Title == "" || p.Objective == "" {
		return fmt.Errorf("pack id, title, and objective are required")
	}
	if len(p.Beats) < minPackBeats || len(p.Beats) > maxPackBeats {
		return fmt.Errorf("pack %s: expected %d..%d beats, got %d", p.ID, minPackBeats, maxPackBeats, len(p.Beats))
	}
	previous := -1
	calls := 0
	for _, beat := range p.Beats {
		if beat.AtSec <= previous {
			return fmt.Errorf("pack %s: beat %s offsets must be strictly increasing", p.ID, beat.ID)
		}
		previous = beat.AtSec
		if beat.Call != nil {
			calls++
		}
	}
	if calls == 0 {
		return fmt.Errorf("pack %s: at least one beat must carry a reporter call", p.ID)
	}
	// Render with a sample organization so enum and required-field errors surface at load time.
	return p.render("Sample Org").Validate()
}

func (p Pack) render(org string) renderedPack {
	replacer := strings.NewReplacer("{org}", org, "{orgTag}", OrgTag(org))
	beats := make([]sim.Beat, 0, len(p.Beats))
	for _, beat := range p.Beats {
		out := sim.Beat{
			ID:               beat.ID,
			AtSec:            beat.AtSec,
			FeedItems:        make([]sim.FeedItem, 0, len(beat.Feed)),
			InternalMessages: make([]sim.InternalMessage, 0, len(beat.Messages)),
		}
		for _, item := range beat.Feed {
			out.FeedItems = append(out.FeedItems, sim.FeedItem{
				ID:     item.ID,
				Source: replacer.Replace(item.Source),
				Text:   replacer.Replace(item.Text),
				Tone:   sim.FeedTone(item.Tone),
			})
		}
		for _, msg := range beat.Messages {
			out.InternalMessages = append(out.InternalMessages, sim.InternalMessage{
				ID:       msg.ID,
				From:     msg.From,
				Text:     replacer.Replace(msg.Text),
				Channel:  msg.Channel,
				Priority: sim.Priority(msg.Priority),
			})
		}
		if beat.Call != nil {
			out.Call = &sim.ReporterCall{
				Persona:    beat.Call.Persona,
				Transcript: replacer.Replace(beat.Call.Transcript),
				TTSText:    replacer.Replace(beat.Call.TTSText),
			}
		}
		beats = append(beats, out)
	}
	constraints := make([]sim.ConstraintCard, 0, len(p.Constraints))
	for _, c := range p.Constraints {
		constraints = append(constraints, sim.ConstraintCard{ID: c.ID, Title: c.Title, Description: replacer.Replace(c.Description)})
	}
	return renderedPack{
		title:     replacer.Replace(p.Title),
		objective: replacer.Replace(p.Objective),
		beats:     beats,
		rubric: sim.ScoringRubric{
			Acknowledgment: p.Rubric.Acknowledgment,
			Clarity:        p.Rubric.Clarity,
			Actionability:  p.Rubric.Actionability,
			Escalation:     p.Rubric.Escalation,
			LegalSafety:    p.Rubric.LegalSafety,
			Empathy:        p.Rubric.Empathy,
		},
		constraints: constraints,
	}
}

type renderedPack struct {
	title       string
	objective   string
	beats       []sim.Beat
	rubric      sim.ScoringRubric
	constraints []sim.ConstraintCard
}

func (r renderedPack) Validate() error {
	for _, beat := range r.beats {
		if err := beat.Validate(); err != nil {
			return err
		}
	}
	if err := r.rubric.Validate(); err != nil {
		return err
	}
	for _, c := range r.constraints {
		if c.ID == "" || c.Title == "" || c.Description == "" {
			return fmt.Errorf("constraint id, title, and description are required")
		}
	}
	return nil
}

// OrgTag strips whitespace from an organization name for hashtag use.
func OrgTag(org string) string {
	return strings.Join(strings.Fields(org), "")
}
