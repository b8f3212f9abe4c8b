package outreach

import "fmt"

const (
	formatExample = "John Doe, @yourinstagram"

	optOutAckText = "No problem, you won't receive any more messages about this. Welcome aboard!"
)

// PromptText is the welcome DM asking for name and handle.
func PromptText(displayName string) string {
	if displayName == "" {
		displayName = "there"
	}
	return fmt.Sprintf(
		"Welcome to the server, %s!\n\n"+
			"Please reply with your **First Name + Last Name** and **Instagram handle** "+
			"(example: %s).\n"+
			"Reply \"opt out\" if you'd rather not share.",
		displayName, formatExample,
	)
}

// CorrectionText is sent after an unparseable reply.
func CorrectionText(strict bool) string {
	if strict {
		return fmt.Sprintf("Sorry, I couldn't read that. Please send your first and last name, a comma, then your handle (example: %s). I'll check back later.", formatExample)
	}
	return fmt.Sprintf("Sorry, I couldn't read that. Please use the format: %s. I'll check back later.", formatExample)
}

// RegisteredAckText confirms a successful registration to the member.
func RegisteredAckText(fullName, handle string) string {
	return fmt.Sprintf("Thanks, %s! You're registered with @%s.", fullName, handle)
}

// AdminSummaryText is the one-line summary posted to the admin channel.
func AdminSummaryText(memberID, displayName, fullName, handle string) string {
	return fmt.Sprintf("New registration: %s (%s) | %s | @%s", displayName, memberID, fullName, handle)
}
