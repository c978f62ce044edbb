package graph

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/nexuslab/nexus/pkg/common"
	"github.com/nexuslab/nexus/pkg/logger"
)

// Patterns that mark a thread as automated noise. Matched case-insensitively
// against subject and body.
var lowSignalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bout of (the )?office\b`),
	regexp.MustCompile(`(?i)\bauto[- ]?reply\b`),
	regexp.MustCompile(`(?i)\bautomatic reply\b`),
	regexp.MustCompile(`(?i)\bdo not reply\b`),
	regexp.MustCompile(`(?i)\bunsubscribe\b`),
	regexp.MustCompile(`(?i)\bdelivery (status notification|failure)\b`),
	regexp.MustCompile(`(?i)^(accepted|declined|tentative):`),
	regexp.MustCompile(`(?i)\bcalendar invitation\b`),
	regexp.MustCompile(`(?i)\bpassword reset\b`),
	regexp.MustCompile(`(?i)\bverification code\b`),
}

// Lines stripped from the body before measuring signal: quoted replies,
// reply headers, signature markers, mobile footers.
var strippedLinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^>`),
	regexp.MustCompile(`(?i)^on .{0,120} wrote:\s*$`),
	regexp.MustCompile(`(?i)^-{2,}\s*(original message|forwarded message)`),
	regexp.MustCompile(`(?i)^(from|to|cc|subject|date|sent):\s`),
}

// Everything after one of these is signature or footer.
var signatureMarkerPattern = regexp.MustCompile(`(?i)^(--\s*$|sent from my )`)

// TriageConfig bounds which threads are worth a model round trip.
type TriageConfig struct {
	// MinParticipants is the minimum number of distinct people a thread
	// must involve. Defaults to 2.
	MinParticipants int
	// MinBodyTokens is the minimum token count of the stripped body.
	// Defaults to 20.
	MinBodyTokens int
}

// Triage decides whether a thread carries enough relationship signal to be
// sent to the extraction model.
type Triage struct {
	config   TriageConfig
	encoding string

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

func NewTriage(config TriageConfig) *Triage {
	if config.MinParticipants <= 0 {
		config.MinParticipants = 2
	}
	if config.MinBodyTokens <= 0 {
		config.MinBodyTokens = 20
	}
	return &Triage{config: config, encoding: "o200k_base"}
}

// ShouldProcess reports whether the thread passes triage. When it does not,
// the returned reason names the failed check.
func (t *Triage) ShouldProcess(thread *common.Thread) (bool, string) {
	people := distinctPeople(thread)
	if len(people) < t.config.MinParticipants {
		return false, fmt.Sprintf(
			"only %d distinct participants, need %d",
			len(people), t.config.MinParticipants,
		)
	}

	if pattern := matchLowSignal(thread.Subject); pattern != "" {
		return false, fmt.Sprintf("low-signal subject matched %q", pattern)
	}

	body := StripBody(thread.Text)
	if pattern := matchLowSignal(body); pattern != "" {
		return false, fmt.Sprintf("low-signal body matched %q", pattern)
	}

	if tokens := t.countTokens(body); tokens < t.config.MinBodyTokens {
		return false, fmt.Sprintf(
			"body has %d tokens after stripping, need %d",
			tokens, t.config.MinBodyTokens,
		)
	}

	return true, ""
}

// countTokens measures the body with the BPE tokenizer when it is
// available, and by whitespace-delimited word count when it is not, so the
// token gate holds in offline deployments instead of waving threads through.
func (t *Triage) countTokens(text string) int {
	t.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			logger.Warn("[Triage] Tokenizer unavailable, counting words instead", "encoding", t.encoding, "err", err)
			return
		}
		t.enc = enc
	})
	if t.enc == nil {
		return len(strings.Fields(text))
	}
	return len(t.enc.Encode(text, nil, nil))
}

func distinctPeople(thread *common.Thread) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range append(append([]string{}, thread.Participants...), thread.PeopleMentioned...) {
		id := strings.ToLower(strings.TrimSpace(raw))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func matchLowSignal(text string) string {
	for _, p := range lowSignalPatterns {
		if p.MatchString(text) {
			return p.String()
		}
	}
	return ""
}

// StripBody removes quoted replies, reply headers, and signature noise so the
// token minimum measures original content only. Everything after a signature
// marker is dropped.
func StripBody(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if signatureMarkerPattern.MatchString(trimmed) {
			break
		}
		if isStrippedLine(trimmed) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isStrippedLine(line string) bool {
	for _, p := range strippedLinePatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}
