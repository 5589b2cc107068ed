package progress

import (
	"regexp"
	"strconv"
	"strings"
)

// Hint is what InferStep could read out of assistant narration.
type Hint struct {
	Step    int  // current step number, 0 when none was mentioned
	AllDone bool // narration announced the whole recipe is finished
}

// Narration patterns, in match order. The kitchen service phrases step
// guidance as "Step 3: ..." and advances with "begin with step 1" /
// "move on to step 4"; the closing line is "you've completed all the
// steps".
var (
	stepLeadRe = regexp.MustCompile(`(?i)\bstep (\d{1,2}):`)
	stepMoveRe = regexp.MustCompile(`(?i)\b(?:begin with|move (?:on )?to|moving (?:on )?to|continue (?:with|to)) step (\d{1,2})\b`)
	allDoneRe  = regexp.MustCompile(`(?i)\bcompleted all (?:the )?steps\b`)
)

// InferStep extracts step progress from free-form narration. It is a pure
// fallback: the engine consults it only when the response carries neither
// an explicit status map nor a timer snapshot, and explicit data always
// wins when both exist. Returns the zero Hint when nothing matched.
func InferStep(text string) Hint {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Hint{}
	}

	if allDoneRe.MatchString(trimmed) {
		return Hint{AllDone: true}
	}

	// "Step N:" at the head of a guidance block is the strongest signal;
	// the movement phrasing is the fallback's fallback.
	if m := stepLeadRe.FindStringSubmatch(trimmed); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return Hint{Step: n}
		}
	}
	if m := stepMoveRe.FindStringSubmatch(trimmed); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return Hint{Step: n}
		}
	}

	return Hint{}
}
