package bot

import (
	"fmt"
	"strings"

	"github.com/PawPulse/PawPulse/internal/models"
)

const (
	petMissingMessage = "You haven't registered a pet yet. Use /survey to get started."

	historyEmptyMessage = "You don't have any saved check-ins yet."

	stopConfirmMessage       = "You've been unsubscribed from daily check-ins. Use /start to subscribe again."
	stopNotSubscribedMessage = "You're not subscribed to daily check-ins."

	defaultReplyMessage = "I don't have a question waiting for you right now. " +
		"Use /survey to start a check-in, or /start to see all commands."

	processingErrorMessage = "⚠️ Something went wrong handling your message. Please try again."
)

func welcomeMessage(schedule string) string {
	return fmt.Sprintf("Hi! 👋\n\n"+
		"I'll send you a daily check-in about your pet every day at %s.\n\n"+
		"Commands:\n"+
		"/start - Start working with the bot\n"+
		"/survey - Run the check-in now\n"+
		"/history - Review your past answers\n"+
		"/pet - Show your pet's profile\n"+
		"/editpet - Update your pet's profile\n"+
		"/stop - Unsubscribe from daily check-ins", schedule)
}

func petInfoMessage(pet *models.PetInfo) string {
	return fmt.Sprintf("🐾 Your pet:\n\nSpecies: %s\nName: %s\nAge: %s", pet.Species, pet.Name, pet.Age)
}

// historyMessage renders up to limit check-ins, most recent first.
// Rendering is read-only; the slice is a snapshot from the store.
func historyMessage(surveys []models.SurveyRecord, limit int) string {
	if len(surveys) > limit {
		surveys = surveys[len(surveys)-limit:]
	}

	var b strings.Builder
	b.WriteString("📊 Your check-in history:\n\n")
	for i := len(surveys) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "📅 %s\n", surveys[i].Timestamp.Format("2006-01-02 15:04"))
		for j, answer := range surveys[i].Answers {
			fmt.Fprintf(&b, "%d. %s\n", j+1, answer)
		}
		b.WriteString("\n")
	}
	return b.String()
}
