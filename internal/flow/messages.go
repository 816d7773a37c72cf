package flow

import "fmt"

// DefaultQuestions is the daily check-in question list used when no
// override is configured.
var DefaultQuestions = []string{
	"What did you do for your pet today?",
	"Was anything difficult or inconvenient with your pet?",
	"What made you or your pet happy or upset today?",
}

const (
	registrationSpeciesPrompt = "🐾 Let's get to know your pet!\n\n" +
		"Question 1 of 3:\nWhat kind of pet do you have? (for example: cat, dog, hamster, parrot)"
	registrationNamePrompt = "Question 2 of 3:\nWhat is your pet's name?"
	registrationAgePrompt  = "Question 3 of 3:\nHow old is your pet? (an estimate is fine)"

	surveyCompleteMessage = "✅ Thanks for your answers! Your check-in has been saved.\nSee you tomorrow! 🐾"
)

func registrationCompleteMessage(species, name, age string) string {
	return fmt.Sprintf("✅ Great, that's saved:\n\n🐾 %s\n📝 Name: %s\n🎂 Age: %s\n\nNow let's do your first daily check-in!",
		species, name, age)
}

func surveyStartMessage(total int, question string) string {
	return fmt.Sprintf("🐾 Time for your daily pet check-in!\n\nQuestion 1 of %d:\n%s", total, question)
}

func surveyQuestionMessage(index, total int, question string) string {
	return fmt.Sprintf("Question %d of %d:\n%s", index+1, total, question)
}
