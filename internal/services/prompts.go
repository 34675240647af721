package services

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	greetingPattern  = regexp.MustCompile(`(?i)^(hi|hello|hey|good morning|good afternoon|good evening)!?$`)
	analyticsPattern = regexp.MustCompile(`(?i)\b(analyze|model|data|ML|machine learning|analytics|visualization|dashboard|SQL|python|statistics|correlation|regression|prediction)\b`)
	vaguePattern     = regexp.MustCompile(`(?i)^(help|what|how)$|^(data|analysis|model)$`)
)

// IsGreeting reports whether message is a bare greeting.
func IsGreeting(message string) bool {
	return greetingPattern.MatchString(strings.TrimSpace(message))
}

// IsSimpleQuery reports whether message is under 20 characters and has no analytics
// vocabulary.
func IsSimpleQuery(message string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(message)) < 20 && !analyticsPattern.MatchString(message)
}

// IsVagueQuery reports whether a notebook query is too short or generic to answer.
func IsVagueQuery(query string) bool {
	q := strings.TrimSpace(query)
	return utf8.RuneCountInString(q) < 10 || vaguePattern.MatchString(q)
}

// ChatPrompt builds the reply prompt for a chat message.
func ChatPrompt(message string) string {
	switch {
	case IsGreeting(message):
		return fmt.Sprintf(`You are ntropiq AI, a friendly data analytics assistant. The user just greeted you with: "%s"

Respond with a brief, warm greeting and let them know you can help with data analytics, machine learning, and insights. Keep it conversational and under 2 sentences.`, message)
	case IsSimpleQuery(message):
		return fmt.Sprintf(`You are ntropiq AI, a data analytics assistant. The user asked: "%s"

Provide a brief, helpful response in 1-2 sentences. If it's not related to data analytics, gently redirect them to how you can help with data analysis, ML models, or insights.`, message)
	}
	return fmt.Sprintf(`You are ntropiq AI, an advanced analytics and machine learning assistant. You help users with data analysis, insights, and building ML models through natural language.

User message: %s

Provide a helpful, professional response. For technical questions, be detailed and actionable. Format your response in clean, readable text (not code blocks unless showing actual code). Use bullet points or numbered lists when helpful for clarity.`, message)
}

// InsightPrompt builds the prompt for a notebook prompt cell.
func InsightPrompt(query string) string {
	if IsVagueQuery(query) {
		return fmt.Sprintf(`You are ntropiq AI in a notebook environment. The user entered: "%s"

This query is too vague. Respond with:
1. A brief acknowledgment (1 sentence)
2. 2-3 specific clarifying questions to help them be more precise

Keep it concise and focused on getting the information needed to provide better analysis.`, query)
	}
	return fmt.Sprintf(`You are ntropiq AI in a notebook environment. The user wants: "%s"

Provide a direct, concise response with:
1. A brief answer or insight (2-3 sentences max)
2. Key next steps or recommendations (bullet points)

Be concise and actionable. Do NOT ask clarifying questions unless the query is completely impossible to address without critical missing information. Focus on providing useful insights and next steps.`, query)
}

// AnalysisPrompt builds the prompt for a notebook code cell.
func AnalysisPrompt(code, language string) string {
	return fmt.Sprintf("You are ntropiq AI in a notebook environment. Analyze this %s code:\n\n```%s\n%s\n```\n\n"+
		"Provide a concise response with:\n"+
		"1. What the code does (1-2 sentences)\n"+
		"2. Key observations or issues (bullet points)\n"+
		"3. One specific improvement suggestion if applicable\n\n"+
		"Be brief and notebook-appropriate. No long explanations.", language, language, code)
}

// AnalysisErrorText is returned in place of an analysis the model could not produce.
func AnalysisErrorText(language string) string {
	return fmt.Sprintf(`**Code Analysis Error**

Unable to analyze the code. Please check for syntax errors and try again.

**Quick checks:**
• Proper indentation
• Closed parentheses and quotes
• Valid %s syntax`, language)
}
