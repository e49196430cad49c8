package healing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"
)

// BrowserContext is the slice of browser state relevant to error
// recurrence matching
type BrowserContext struct {
	BrowserType string `json:"browser_type"`
	UserAgent   string `json:"user_agent"`
	URL         string `json:"url,omitempty"`
}

// HealingContext describes one automation failure reported by an agent
type HealingContext struct {
	ErrorMessage  string
	ErrorStack    string
	Step          json.RawMessage
	Browser       BrowserContext
	UserProfileID string
	Domain        string
	MissionRunID  string
	GuruID        string
}

// FingerprintContext is the denormalized copy of the hashed fields, kept
// alongside the signature for future loose matching.
type FingerprintContext struct {
	BrowserType   string `json:"browser_type"`
	Domain        string `json:"domain"`
	UserAgent     string `json:"user_agent"`
	TimeOfDay     string `json:"time_of_day"`
	UserProfileID string `json:"user_profile_id,omitempty"`
}

// ErrorFingerprint is the stable cache key for a recurring failure
type ErrorFingerprint struct {
	Signature string
	Context   FingerprintContext
}

// stackPrefixLen bounds how much of the stack trace feeds the hash; the
// tail is noise that varies between otherwise identical failures
const stackPrefixLen = 500

// fingerprintData fixes the field set and order fed into the hash
type fingerprintData struct {
	ErrorMessage string `json:"error_message"`
	ErrorStack   string `json:"error_stack"`
	Domain       string `json:"domain"`
	BrowserType  string `json:"browser_type"`
	UserAgent    string `json:"user_agent"`
	TimeOfDay    int    `json:"time_of_day"`
}

// Fingerprint derives the stable signature for a failure. Run and
// session identifiers are deliberately excluded so a recurring bug
// collapses to one signature regardless of which run hit it. The hour
// bucket comes from now so time-correlated failures cluster.
func Fingerprint(hctx HealingContext, now time.Time) ErrorFingerprint {
	browserType := hctx.Browser.BrowserType
	if browserType == "" {
		browserType = "chromium"
	}
	userAgent := hctx.Browser.UserAgent
	if userAgent == "" {
		userAgent = "unknown"
	}

	stack := hctx.ErrorStack
	if len(stack) > stackPrefixLen {
		stack = stack[:stackPrefixLen]
	}

	data := fingerprintData{
		ErrorMessage: hctx.ErrorMessage,
		ErrorStack:   stack,
		Domain:       hctx.Domain,
		BrowserType:  browserType,
		UserAgent:    userAgent,
		TimeOfDay:    now.Hour(),
	}

	encoded, _ := json.Marshal(data)
	sum := sha256.Sum256(encoded)
	signature := hex.EncodeToString(sum[:])[:32]

	return ErrorFingerprint{
		Signature: signature,
		Context: FingerprintContext{
			BrowserType:   browserType,
			Domain:        hctx.Domain,
			UserAgent:     userAgent,
			TimeOfDay:     strconv.Itoa(now.Hour()),
			UserProfileID: hctx.UserProfileID,
		},
	}
}
