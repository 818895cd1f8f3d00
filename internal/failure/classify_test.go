package failure

import "testing"

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want Reason
	}{
		{"banned", "Forbidden: bot was banned from the group chat", ReasonBanned},
		{"kicked", "Bad Request: USER_KICKED", ReasonBanned},
		{"chat not found", "Bad Request: chat not found", ReasonNotFound},
		{"forbidden", "Forbidden: bot is not a member of the channel chat", ReasonAccessDenied},
		{"no rights", "Bad Request: have no rights to send a message", ReasonPermissionDenied},
		{"restricted", "Bad Request: CHAT_WRITE_FORBIDDEN writing is restricted", ReasonPermissionDenied},
		{"flood", "Too Many Requests: retry after 14", ReasonRateLimited},
		{"floodwait", "FLOOD_WAIT_30", ReasonRateLimited},
		{"topic before generic", "Bad Request: message thread not found", ReasonTopicNotFound},
		{"topic deleted", "Bad Request: TOPIC_DELETED", ReasonTopicNotFound},
		{"message not found", "Bad Request: message to forward not found", ReasonMessageNotFound},
		{"timeout", "Post https://api: context deadline exceeded (timeout)", ReasonConnectionError},
		{"network", "dial tcp: network is unreachable", ReasonConnectionError},
		{"too long", "Bad Request: message is too long", ReasonContentTooLarge},
		{"unknown", "Bad Request: something novel happened", ReasonOther},
		{"empty", "", ReasonOther},
		{"case insensitive", "BOT WAS BANNED", ReasonBanned},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tc.in); got != tc.want {
				t.Fatalf("Classify(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestReasonRetryable(t *testing.T) {
	t.Parallel()

	retryable := map[Reason]bool{
		ReasonRateLimited:     true,
		ReasonConnectionError: true,
		ReasonOther:           true,
		ReasonBanned:          false,
		ReasonNotFound:        false,
		ReasonAccessDenied:    false,
		ReasonTopicNotFound:   false,
		ReasonContentTooLarge: false,
	}
	for r, want := range retryable {
		if got := r.Retryable(); got != want {
			t.Errorf("%s.Retryable() = %v, want %v", r, got, want)
		}
	}
}
