package dialogue

import (
	"fmt"

	"github.com/chadiek/call-intake/internal/extract"
)

// Hebrew prompt texts. Each string is spoken as one utterance.
const (
	promptGreeting        = "שלום, תודה שהתקשרת. השיחה מוקלטת לצורך חזרה אליך."
	promptConsent         = "האם אפשר שנציג יחזור אליך לגבי הלימודים? אפשר לענות כן או לא."
	promptConsentRetry    = "סליחה, לא הבנתי. האם אפשר שנחזור אליך? כן או לא?"
	promptAskName         = "מה השם המלא שלך?"
	promptAskNameRetry    = "לא שמעתי טוב. אפשר לומר שוב את השם המלא?"
	promptNameCorrection  = "סליחה על הטעות. מה השם הנכון?"
	promptConsentGranted  = "מעולה."
	promptYesNoOnly       = "אפשר לענות כן או לא."
	promptAskPhone        = "לאיזה מספר טלפון נוח שנחזור? אפשר לומר את הספרות אחת אחת."
	promptAskPhoneRetry   = "לא הצלחתי לקלוט את המספר. אפשר לומר אותו שוב, ספרה אחרי ספרה?"
	promptFarewellDone    = "תודה רבה, נציג יחזור אליך בהקדם. יום טוב!"
	promptFarewellNo      = "בסדר גמור, לא נחזור אליך. תודה ויום טוב!"
	promptFarewellDecline = "הבנתי, תודה ויום טוב."
	promptFarewellPhone   = "לא הצלחתי לקלוט מספר תקין. תודה ויום טוב."
	promptFarewellUnconf  = "לא הצלחנו לאשר את המספר. תודה ויום טוב."

	// Timer nudges; spoken by the session, not the state machine.
	PromptIdleNudge = "אני עדיין כאן. "
	PromptWrapUp    = "נשארה לנו עוד דקה קצרה לשיחה."
)

func promptConfirmName(n extract.Name) string {
	return fmt.Sprintf("שמעתי %s. האם זה נכון?", n.Full())
}

func promptConfirmCallerLast4(local string) string {
	return fmt.Sprintf("האם לחזור אליך למספר שמסתיים בספרות %s?", extract.SpokenDigits(extract.Last4(local)))
}

func promptConfirmPhone(digits string) string {
	return fmt.Sprintf("רשמתי את המספר %s. האם זה נכון?", extract.SpokenDigits(digits))
}
