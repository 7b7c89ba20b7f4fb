package report

import (
	"context"
	"fmt"

	"github.com/vbonduro/snackcheck/internal/domain"
)

// SystemPrompt is the fixed persona shared by all providers.
const SystemPrompt = `You are an expert Food Product Analyst specializing in nutrition and health effects of ingredients.
Your job is to analyze product ingredients and assess their impact.
Consider:
- The nutritional impact of the product.
- Artificial additives, preservatives, and harmful chemicals.
- Provide a clear, science-backed summary including risks and better alternatives.
* Also rate the ingredients with a 1-5 star rating.
* Use emojis to make the analysis more engaging and fun.
* Share some interesting, little-known facts about the ingredients that will make people rethink their favorite snack/food/product.
* Score the product/food/snack from 1-5 (1 being the worst and 5 being the best).`

// Instructions are the fixed behavioural rules appended to the persona.
const Instructions = `* Analyze the list of ingredients carefully.
* Highlight harmful additives, preservatives, and chemicals.
* Explain the nutritional value and potential risks.
* Suggest healthier alternatives if necessary.
* Rate the ingredients from 1-5 stars.
* Make the explanation fun, engaging, and easy to understand by using emojis and bold important terms.
* Format your response in markdown.`

// MaxToolRounds bounds how many times a provider answers web_search calls
// before it asks the model for a final answer without tools.
const MaxToolRounds = 4

// Generator produces the free-text health analysis for an ingredient list.
type Generator interface {
	// Generate returns the model's analysis. Failures of the model or of the
	// search tool are returned as apperr generation errors.
	Generate(ctx context.Context, ingredientsText, healthContext string) (string, error)
	// Name identifies the provider in logs and the run log.
	Name() string
}

// System returns the persona and instructions as one system message.
func System() string {
	return SystemPrompt + "\n\nInstructions:\n" + Instructions
}

// BuildPrompt builds the user message. A blank health context falls back to
// domain.DefaultHealthContext; empty ingredients are passed through as-is.
func BuildPrompt(healthContext, ingredientsText string) string {
	return fmt.Sprintf(`The user has a health problem: %s
Analyze the ingredients: %s
Identify any harmful ingredients, nutritional impacts, and provide a 1-5 star rating.
Suggest healthier alternatives if needed.
Make sure to include **emojis** and **bold important terms** to make the summary more fun and engaging!`,
		domain.HealthContext(healthContext), ingredientsText)
}
