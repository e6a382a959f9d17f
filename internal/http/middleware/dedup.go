package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderIdempotencyKey is the request header carrying the submission's
// dedup token. Clients keep it stable across retries of the same logical
// submission (the classic double-click) so the ledger collapses them into
// one record.
const HeaderIdempotencyKey = "Idempotency-Key"

// ctxKeyDedupToken stashes the validated token in the Gin context.
const ctxKeyDedupToken = "dedup.token"

// tokenPattern bounds what a token may look like: printable, no spaces,
// so it can live in a CSV column untouched.
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// DedupOptions configures token validation.
type DedupOptions struct {
	// MaxLen caps token length; 0 means the default of 200.
	MaxLen int
}

// DedupToken validates the Idempotency-Key header on unsafe methods and
// stores the result in the context. A missing header is not an error: a
// fresh UUID is generated, which makes that attempt its own logical
// submission (no retry protection, by the caller's choice). A present but
// malformed header is rejected with 400 before any work happens.
func DedupToken(opt DedupOptions) gin.HandlerFunc {
	maxLen := opt.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		token := c.GetHeader(HeaderIdempotencyKey)
		if token == "" {
			c.Set(ctxKeyDedupToken, uuid.NewString())
			c.Next()
			return
		}
		if len(token) > maxLen || !tokenPattern.MatchString(token) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_request",
				"message":    "malformed " + HeaderIdempotencyKey + " header",
			})
			return
		}
		c.Set(ctxKeyDedupToken, token)
		c.Next()
	}
}

// GetDedupToken returns the token stored by DedupToken. The second return
// value reports presence; handlers should prefer this over re-reading the
// header.
func GetDedupToken(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyDedupToken)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}
