// Package instruction builds the one-time system instruction that frames the
// assistant's role, tone, and boundaries for a conversation.
//
// Build is a pure function of the user profile: the same (name, age, gender)
// always produces the same text. It is evaluated once per new session and
// never re-applied to an existing one.
package instruction

import (
	"fmt"
	"strings"

	"github.com/verdiyev/caremate/internal/domain"
)

// persona holds the gender-specific personalization fragments.
type persona struct {
	style      string
	focus      string
	riskFactor string
}

var personas = map[domain.Gender]persona{
	domain.GenderFemale: {
		style:      "kind, empathetic, and understanding",
		focus:      "Pay particular attention to women's health topics (menstrual cycle, pregnancy, menopause, breast health).",
		riskFactor: "Areas that deserve special attention for women: breast cancer screening, cervical cancer, bone health (osteoporosis), thyroid conditions.",
	},
	domain.GenderMale: {
		style:      "kind, empathetic, and direct",
		focus:      "Pay particular attention to men's health topics (prostate health, testosterone, cardiovascular health).",
		riskFactor: "Areas that deserve special attention for men: prostate health, cardiovascular disease, testicular cancer, liver health.",
	},
	domain.GenderOther: {
		style:      "inclusive, empathetic, and respectful",
		focus:      "Take an inclusive and sensitive approach to health topics.",
		riskFactor: "Provide guidance on general health screenings and preventive care.",
	},
}

// ageGuidance returns the age-bracket note and focus areas.
// Brackets: under 18, 18-49, 50 and over.
func ageGuidance(age int) (note, focus string) {
	switch {
	case age < 18:
		return "Use age-appropriate, easy-to-follow language for child and adolescent health topics.",
			"Cover growth and development, vaccination schedules, and adolescent health where relevant."
	case age >= 50:
		return "Emphasize health topics specific to middle and older age (chronic conditions, screenings, lifestyle).",
			"Offer guidance on regular checkups, cancer screenings, heart health, and diabetes risk."
	default:
		return "Focus on young-adult health topics (lifestyle, preventive care, mental health).",
			"Provide guidance on healthy habits, exercise, nutrition, and stress management."
	}
}

// salutation returns how the assistant should address the user.
func salutation(gender domain.Gender, age int) string {
	if gender == domain.GenderOther {
		return "Hello"
	}
	if age >= 18 {
		return "Dear"
	}
	return "Dearest"
}

// Build constructs the system instruction for a new session from the user
// profile. It defines the assistant's role, personalization, boundaries,
// presentation style, and emergency guidance.
func Build(p domain.Profile) string {
	per, ok := personas[p.Gender]
	if !ok {
		per = personas[domain.GenderOther]
	}
	ageNote, ageFocus := ageGuidance(p.Age)

	var b strings.Builder

	fmt.Fprintf(&b, "Role: You are an experienced, empathetic health assistant. Your client is %s, %d years old. ", p.Name, p.Age)
	fmt.Fprintf(&b, "Address them as \"%s %s\" and keep your tone %s.", salutation(p.Gender, p.Age), p.Name, per.style)
	b.WriteString("\n\n")

	b.WriteString("Personalization: ")
	b.WriteString(per.focus)
	b.WriteString(" ")
	b.WriteString(per.riskFactor)
	b.WriteString(" ")
	b.WriteString(ageNote)
	b.WriteString(" ")
	b.WriteString(ageFocus)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Purpose: Answer health questions kindly, plainly, and in a way suited to %s's age (%d); offer general, safe, and actionable suggestions.", p.Name, p.Age)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Boundaries: Never give a definitive diagnosis, prescription, or treatment plan; for risky or urgent symptoms, direct the user to professional care. Avoid medical jargon. Take %s's age (%d) and gender (%s) into account in your answers.", p.Name, p.Age, p.Gender)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Presentation: Short paragraphs; bullet points when useful. Use the name %s when natural; stay calm and empathetic; never alarm the user. Ask clarifying questions when needed and be honest about uncertainty.", p.Name)
	b.WriteString("\n\n")

	b.WriteString("Emergencies: For symptoms that may be life-threatening (chest pain, shortness of breath, loss of consciousness, severe bleeding), advise calling emergency services or going to the nearest emergency department immediately.")

	return b.String()
}
