package failure

import "strings"

// Reason is the fixed delivery-failure taxonomy. The messaging provider only
// surfaces errors as text, so classification is substring matching; there are
// no structured error codes to lean on.
type Reason string

const (
	ReasonBanned           Reason = "banned"
	ReasonNotFound         Reason = "not_found"
	ReasonAccessDenied     Reason = "access_denied"
	ReasonPermissionDenied Reason = "permission_denied"
	ReasonRateLimited      Reason = "rate_limited"
	ReasonTopicNotFound    Reason = "topic_not_found"
	ReasonMessageNotFound  Reason = "message_not_found"
	ReasonConnectionError  Reason = "connection_error"
	ReasonContentTooLarge  Reason = "content_too_large"
	ReasonOther            Reason = "other"
)

// classifyRules is an ordered rule list: first match wins. Order matters for
// overlapping substrings: "topic not found" must resolve before the generic
// "not found" rules, and the permission phrases before "forbidden", which
// Telegram puts in both restriction and membership errors.
var classifyRules = []struct {
	substr string
	reason Reason
}{
	{"banned", ReasonBanned},
	{"kicked", ReasonBanned},
	{"flood", ReasonRateLimited},
	{"retry after", ReasonRateLimited},
	{"too many requests", ReasonRateLimited},
	{"topic not found", ReasonTopicNotFound},
	{"thread not found", ReasonTopicNotFound},
	{"topic_deleted", ReasonTopicNotFound},
	{"message not found", ReasonMessageNotFound},
	{"message to forward not found", ReasonMessageNotFound},
	{"message can't be forwarded", ReasonMessageNotFound},
	{"message is not modified", ReasonMessageNotFound},
	{"message to edit not found", ReasonMessageNotFound},
	{"chat not found", ReasonNotFound},
	{"user not found", ReasonNotFound},
	{"not found", ReasonNotFound},
	{"not enough rights", ReasonPermissionDenied},
	{"permission", ReasonPermissionDenied},
	{"have no rights", ReasonPermissionDenied},
	{"writing is restricted", ReasonPermissionDenied},
	{"access denied", ReasonAccessDenied},
	{"forbidden", ReasonAccessDenied},
	{"connection", ReasonConnectionError},
	{"timeout", ReasonConnectionError},
	{"network", ReasonConnectionError},
	{"request entity too large", ReasonContentTooLarge},
	{"too long", ReasonContentTooLarge},
	{"too large", ReasonContentTooLarge},
}

// Classify maps a raw provider error message to a taxonomy tag.
// It is pure, deterministic and total: unknown text maps to ReasonOther.
func Classify(errText string) Reason {
	s := strings.ToLower(errText)
	for _, r := range classifyRules {
		if strings.Contains(s, r.substr) {
			return r.reason
		}
	}
	return ReasonOther
}
