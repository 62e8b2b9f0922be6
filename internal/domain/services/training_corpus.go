package services

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"honeyshield/internal/domain/models"
)

type corpusTemplate struct {
	text  string
	slots map[string][]string
}

var phishingTemplates = []corpusTemplate{
	{
		text: "URGENT: Your {platform} account shows suspicious login attempts from {location}. To prevent immediate suspension, verify your identity at: {link}",
		slots: map[string][]string{
			"platform": {"LinkedIn", "Facebook", "Google", "Microsoft", "Apple"},
			"location": {"China", "Russia", "Nigeria", "unknown location", "new device"},
		},
	},
	{
		text: "Security Alert: Unusual activity detected on your account. Click to secure: {link} This is mandatory to avoid permanent termination.",
	},
	{
		text: "Investment Opportunity: Get {return}% returns on your investment. Limited time offer! Contact me on {platform} at {contact}",
		slots: map[string][]string{
			"return":   {"300", "500", "1000", "2000"},
			"platform": {"WhatsApp", "Telegram", "Signal", "WeChat"},
			"contact":  {"this number", "my personal number", "the provided contact"},
		},
	},
	{
		text: "You've been selected for an exclusive {offer}! To claim it, provide your personal details and phone number at: {link}",
		slots: map[string][]string{
			"offer": {"prize", "reward", "bonus", "special offer", "limited opportunity"},
		},
	},
	{
		text: "Official Notice: Your {service} requires immediate verification due to policy updates. Failure to comply within {timeframe} will result in {consequence}",
		slots: map[string][]string{
			"service":     {"account", "subscription", "membership", "service"},
			"timeframe":   {"24 hours", "2 hours", "immediately", "today"},
			"consequence": {"suspension", "termination", "legal action", "fees"},
		},
	},
	{
		text: "You look {compliment} in your profile picture. I feel so lonely here, can we talk on {platform}? Send me your number {urgency}",
		slots: map[string][]string{
			"compliment": {"amazing", "gorgeous", "perfect", "wonderful"},
			"platform":   {"WhatsApp", "Telegram", "Signal", "Skype"},
			"urgency":    {"now", "right away", "asap", "immediately"},
		},
	},
	{
		text: "I am a recruiter for an exclusive {sector} role, only for people with security clearance. Email me your CV and confirm your {detail} on {platform} {urgency}",
		slots: map[string][]string{
			"sector":   {"defense", "government", "aerospace", "intelligence"},
			"detail":   {"clearance level", "phone number", "home address", "account details"},
			"platform": {"Telegram", "WhatsApp", "Signal"},
			"urgency":  {"today", "now", "asap"},
		},
	},
	{
		text: "Hi dear, everyone in my team made a profit with this crypto fund. Only a small fee of {amount} to join, send the payment {urgency}!",
		slots: map[string][]string{
			"amount":  {"$200", "$500", "0.01 BTC", "$1000"},
			"urgency": {"now", "today", "right away", "fast"},
		},
	},
}

var legitimateTemplates = []corpusTemplate{
	{
		text: "Hi {name}, I came across your profile and was impressed by your work in {field}. Would you be open to connecting?",
		slots: map[string][]string{
			"name":  {"", "there", "Alex", "Sam"},
			"field": {"tech", "marketing", "finance", "engineering", "design"},
		},
	},
	{
		text: "Enjoyed your recent post about {topic}! I particularly liked your point about {detail}",
		slots: map[string][]string{
			"topic":  {"AI", "leadership", "innovation", "industry trends", "technology"},
			"detail": {"the future impact", "practical applications", "your insights", "the analysis"},
		},
	},
	{
		text: "Would you be available for a quick chat about {subject} next week? I'd love to get your perspective",
		slots: map[string][]string{
			"subject": {"industry developments", "potential collaboration", "professional interests", "mutual connections"},
		},
	},
	{
		text: "Thanks for connecting! I look forward to seeing your content and learning from your experience in {industry}",
		slots: map[string][]string{
			"industry": {"technology", "business", "healthcare", "education", "finance"},
		},
	},
	{
		text: "Congratulations on the new role at {company}. Hope the first weeks are going well.",
		slots: map[string][]string{
			"company": {"your new company", "the startup", "the consultancy", "the university"},
		},
	},
	{
		text: "We met at the {event} last month. It was good talking about {topic}, let's keep in touch here.",
		slots: map[string][]string{
			"event": {"conference", "meetup", "workshop", "career fair"},
			"topic": {"cloud migration", "team building", "product strategy", "data pipelines"},
		},
	},
}

var corpusGreetings = []string{
	"Kindly ", "Please be advised ", "Important: ", "Attention: ",
	"Hello, ", "Hi there, ", "Greetings, ",
}

// CorpusGenerator produces a labeled, balanced training corpus from message
// templates. A fixed seed yields the same corpus.
type CorpusGenerator struct {
	rng *rand.Rand
}

func NewCorpusGenerator(seed int64) *CorpusGenerator {
	return &CorpusGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *CorpusGenerator) fill(t corpusTemplate) string {
	out := t.text
	slots := make([]string, 0, len(t.slots))
	for slot := range t.slots {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	for _, slot := range slots {
		values := t.slots[slot]
		out = strings.ReplaceAll(out, "{"+slot+"}", values[g.rng.Intn(len(values))])
	}
	if strings.Contains(out, "{link}") {
		out = strings.ReplaceAll(out, "{link}", fmt.Sprintf("http://verify-%d.com", 1000+g.rng.Intn(9000)))
	}
	return strings.Join(strings.Fields(out), " ")
}

// Phishing returns one generated social-engineering message.
func (g *CorpusGenerator) Phishing() string {
	return g.fill(phishingTemplates[g.rng.Intn(len(phishingTemplates))])
}

// Legitimate returns one generated professional message.
func (g *CorpusGenerator) Legitimate() string {
	return g.fill(legitimateTemplates[g.rng.Intn(len(legitimateTemplates))])
}

// Generate alternates phishing and legitimate samples, then prefixes a
// greeting to a quarter of them.
func (g *CorpusGenerator) Generate(size int) []models.TrainingSample {
	samples := make([]models.TrainingSample, 0, size)
	for i := 0; i < size; i++ {
		if i%2 == 0 {
			samples = append(samples, models.TrainingSample{Text: g.Phishing(), Label: 1, Type: "phishing", Source: "generated"})
		} else {
			samples = append(samples, models.TrainingSample{Text: g.Legitimate(), Label: 0, Type: "legitimate", Source: "generated"})
		}
	}

	for _, i := range g.rng.Perm(len(samples))[:len(samples)/4] {
		greeting := corpusGreetings[g.rng.Intn(len(corpusGreetings))]
		if !hasGreeting(samples[i].Text) {
			samples[i].Text = greeting + samples[i].Text
		}
	}
	return samples
}

func hasGreeting(text string) bool {
	for _, gr := range corpusGreetings {
		if strings.HasPrefix(text, gr) {
			return true
		}
	}
	return false
}

// SplitHoldout deterministically splits samples, keeping both labels in each
// part. frac is the holdout share.
func SplitHoldout(samples []models.TrainingSample, frac float64, seed int64) (train, holdout []models.TrainingSample) {
	rng := rand.New(rand.NewSource(seed))
	byLabel := map[int][]models.TrainingSample{}
	for _, s := range samples {
		byLabel[s.Label] = append(byLabel[s.Label], s)
	}
	for _, label := range []int{0, 1} {
		group := byLabel[label]
		rng.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })
		cut := int(float64(len(group)) * frac)
		holdout = append(holdout, group[:cut]...)
		train = append(train, group[cut:]...)
	}
	return train, holdout
}
