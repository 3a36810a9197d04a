// Package promptguard screens inbound task prompts for injection and
// exfiltration patterns before they enter the queue. Every flagged prompt is
// recorded durably as a security event; only BLOCKED verdicts reject the task.
package promptguard

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/opensourcewtf/waaah/internal/common/logger"
	"github.com/opensourcewtf/waaah/internal/common/stringutil"
	"github.com/opensourcewtf/waaah/internal/store"
	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

// ErrPromptBlocked rejects a prompt the guard refused to queue.
var ErrPromptBlocked = errors.New("prompt blocked by security screening")

// Verdict is the screening outcome for a prompt.
type Verdict string

const (
	VerdictAllowed Verdict = "ALLOWED"
	VerdictWarned  Verdict = "WARNED"
	VerdictBlocked Verdict = "BLOCKED"
)

// maxRecordedPrompt caps how much of a flagged prompt is persisted.
const maxRecordedPrompt = 500

type rule struct {
	name    string
	pattern *regexp.Regexp
	verdict Verdict
}

// The rule set is intentionally small and high-precision. Screening is a
// tripwire, not a content filter; agents still apply their own judgement.
var rules = []rule{
	{"instruction-override", regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above)\s+(instructions|rules|prompts)`), VerdictBlocked},
	{"exfiltration", regexp.MustCompile(`(?i)(send|upload|post|leak|email)\b.{0,60}\b(credentials?|secrets?|api[\s_-]?keys?|private[\s_-]?keys?|\.env\b)`), VerdictBlocked},
	{"destructive-shell", regexp.MustCompile(`(?i)rm\s+-[a-z]*r[a-z]*f[a-z]*\s+[/~]`), VerdictWarned},
	{"prompt-disclosure", regexp.MustCompile(`(?i)(reveal|print|show|repeat)\b.{0,40}\bsystem\s+prompt`), VerdictWarned},
	{"credential-probe", regexp.MustCompile(`(?i)(id_rsa|aws_secret_access_key|authorized_keys|/etc/shadow)`), VerdictWarned},
}

// Guard screens prompts and records flagged ones.
type Guard struct {
	store  store.Store
	logger *logger.Logger
}

// New creates a prompt guard backed by the given store.
func New(st store.Store, log *logger.Logger) *Guard {
	return &Guard{store: st, logger: log}
}

// Screen evaluates a prompt against the rule set. WARNED and BLOCKED verdicts
// are persisted as security events before returning; a storage failure on a
// BLOCKED verdict still blocks.
func (g *Guard) Screen(ctx context.Context, from v1.Origin, prompt string) (Verdict, error) {
	verdict := VerdictAllowed
	var flags []string
	for _, r := range rules {
		if !r.pattern.MatchString(prompt) {
			continue
		}
		flags = append(flags, r.name)
		if r.verdict == VerdictBlocked {
			verdict = VerdictBlocked
		} else if verdict == VerdictAllowed {
			verdict = VerdictWarned
		}
	}
	if verdict == VerdictAllowed {
		return verdict, nil
	}

	event := &v1.SecurityEvent{
		Source: from.Type,
		FromID: from.ID,
		Prompt: stringutil.TruncateString(prompt, maxRecordedPrompt),
		Flags:  flags,
		Action: string(verdict),
	}
	if err := g.store.AddSecurityEvent(ctx, event); err != nil {
		g.logger.Error("failed to record security event", zap.Error(err))
	}
	g.logger.Warn("prompt flagged",
		zap.String("verdict", string(verdict)),
		zap.Strings("flags", flags),
		zap.String("from", from.ID),
	)

	if verdict == VerdictBlocked {
		return verdict, fmt.Errorf("flagged %v: %w", flags, ErrPromptBlocked)
	}
	return verdict, nil
}
