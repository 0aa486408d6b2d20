package payment

import (
	"strconv"
	"strings"
)

var InstructionMap = map[Method][]string{
	MethodCodeScan: {
		"Open the school payment app on your phone",
		"Tap Scan and point the camera at the QR code on screen",
		"Check that the amount is {{amount}}",
		"Confirm the payment before the timer runs out",
	},

	MethodIdentifier: {
		"Enter your 4-digit student ID (grade, room, number)",
		"A payment request for {{amount}} will be sent to your app",
		"Approve the request in the app before the timer runs out",
	},
}

func GetInstructions(method Method) []string {
	if steps, ok := InstructionMap[method]; ok {
		return steps
	}

	return []string{
		"Choose a payment method to continue",
	}
}

type InstructionVars map[string]string

func InjectVariables(
	steps []string,
	vars InstructionVars,
) []string {
	result := make([]string, 0, len(steps))

	for _, step := range steps {
		updated := step
		for key, value := range vars {
			updated = strings.ReplaceAll(
				updated,
				"{{"+key+"}}",
				value,
			)
		}
		result = append(result, updated)
	}

	return result
}

// FormatAmount renders an amount with thousands separators, e.g. 3500 → "3,500".
func FormatAmount(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}

	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// InstructionsFor returns the filled-in steps for method and amount.
func InstructionsFor(method Method, amount int64) []string {
	return InjectVariables(GetInstructions(method), InstructionVars{
		"amount": FormatAmount(amount),
	})
}
