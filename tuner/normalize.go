package tuner

import (
	"regexp"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Normalize lower-cases a channel name and collapses all whitespace runs to
// single spaces. It is idempotent; every cache key and every comparison in
// the engine goes through it.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// CallSignPattern matches US broadcast call signs (a leading W or K followed
// by 2-3 letters) on normalized names. Call signs sort by their hidden
// network name in most guides, so they are excluded from binary-search
// direction comparisons. The pattern is exported because it is a regional
// heuristic: deployments outside US broadcast coverage should override it.
var CallSignPattern = regexp.MustCompile(`^[wk][a-z]{2,3}$`)

func isCallSign(name string) bool {
	return CallSignPattern.MatchString(name)
}

// Guide lists sort with locale rules ("7News" before letters, case folded),
// not raw byte order. A collate.Collator is not safe for concurrent use, so
// compareNames serializes access; resolutions are short and contention is low.
var (
	collatorMu sync.Mutex
	collator   = collate.New(language.AmericanEnglish, collate.IgnoreCase)
)

// compareNames returns -1, 0, or 1 ordering a and b the way an
// alphabetically sorted guide does.
func compareNames(a, b string) int {
	collatorMu.Lock()
	defer collatorMu.Unlock()
	return collator.CompareString(a, b)
}
