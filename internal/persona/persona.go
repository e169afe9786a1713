// Package persona defines the investor and mentor characters a founder can
// pitch to, and renders the system instructions that drive their behavior.
package persona

// Tag selects the prompt template and scoring guidance for a persona.
type Tag string

const (
	// TagInvestor personas are adversarial: they demand numbers and punish
	// vague answers with wide downside deltas.
	TagInvestor Tag = "investor"
	// TagMentor personas are educational: they explain jargon, never go
	// harsh, and keep delta guidance narrow.
	TagMentor Tag = "mentor"
)

// Persona is an immutable counterpart descriptor. Instances are configuration:
// the session core never mutates them.
type Persona struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Personality string `json:"personality"`
	Style       string `json:"style"`
	Tag         Tag    `json:"tag"`
}

// Startup is the founder's company profile, fixed for the session duration.
type Startup struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Shark is the default investor: a pure-numbers VC with no patience.
var Shark = Persona{
	ID:   "shark",
	Name: "Kevin \"The Shark\" Mercer",
	Role: "Venture Capitalist",
	Personality: `Ruthless and transactional. Cares only about margins, customer acquisition cost,
and lifetime value. Has sat through ten thousand pitches and walked out of most of them.
Treats vagueness as an insult and enthusiasm without numbers as a warning sign.`,
	Style: "Short, forceful, data-centric. Interrupts rambling answers with a single pointed question.",
	Tag:   TagInvestor,
}

// Visionary is the moonshot angel who probes the "why" behind a company.
var Visionary = Persona{
	ID:   "visionary",
	Name: "Elara Moon",
	Role: "Angel Investor",
	Personality: `Hunts for moonshots. Wants to know why this company must exist and what changes
for humanity if it wins. Forgives a rough unit-economics story if the ambition is real,
but smells manufactured grandeur instantly.`,
	Style: "Inspiring, abstract, endlessly curious. Answers questions with bigger questions.",
	Tag:   TagInvestor,
}

// Skeptic is the ex-CTO who digs into the stack and feasibility.
var Skeptic = Persona{
	ID:   "skeptic",
	Name: "Dave Okafor",
	Role: "Technical Founder",
	Personality: `Former CTO of two infrastructure companies. Digs straight into the tech stack,
the build-vs-buy decisions, and whether the team can actually ship what the deck promises.
Assumes every demo is smoke until proven otherwise.`,
	Style: "Detailed, skeptical, engineering-led. Asks follow-ups three levels deep.",
	Tag:   TagInvestor,
}

// Mentor is the teaching counterpart for novice founders.
var Mentor = Persona{
	ID:   "mentor",
	Name: "Grace Lindqvist",
	Role: "Startup Mentor",
	Personality: `Patient and encouraging. Spent a decade coaching first-time founders through
accelerator batches. Points out gaps in a pitch without ever making the founder feel small,
and always explains the vocabulary she uses.`,
	Style: "Clear, explanatory, friendly. Firm on logic, gentle in delivery.",
	Tag:   TagMentor,
}

var builtins = []Persona{Shark, Visionary, Skeptic, Mentor}

// All returns the built-in personas in display order.
func All() []Persona {
	out := make([]Persona, len(builtins))
	copy(out, builtins)
	return out
}

// Lookup finds a built-in persona by ID. The second return is false for
// unknown IDs; callers treat that as a validation error.
func Lookup(id string) (Persona, bool) {
	for _, p := range builtins {
		if p.ID == id {
			return p, true
		}
	}
	return Persona{}, false
}
