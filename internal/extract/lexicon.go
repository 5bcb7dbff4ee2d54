package extract

// Lexicon holds the locale-specific word lists used by the extractor.
// Phrases are matched after normalization, so entries must be lowercase and
// free of punctuation.
type Lexicon struct {
	Yes       []string
	No        []string
	Refusal   []string
	StopWords []string
	// Negators cancel an affirmative word that directly follows them.
	Negators []string
	// Digits maps a spoken digit word to its digit character.
	Digits map[string]byte
	// Conjunction is a one-letter prefix that may be glued to a digit word
	// ("ושתיים"). Empty disables prefix stripping.
	Conjunction string
}

// Hebrew is the default lexicon for calls handled in Hebrew.
var Hebrew = Lexicon{
	Yes: []string{
		"כן", "כן כן", "בטח", "בטוח", "נכון", "בדיוק", "כמובן", "אוקיי", "אוקי", "סבבה",
		"בסדר", "מאשר", "מאשרת", "יאללה", "ברור", "yes", "yeah", "yep", "ok", "okay", "correct",
	},
	No: []string{
		"לא", "ממש לא", "שלילי", "טעות", "no", "nope", "wrong",
	},
	Refusal: []string{
		"לא מעוניין", "לא מעוניינת", "לא רוצה", "תוריד אותי", "תורידו אותי", "תסיר אותי",
		"תסירו אותי", "אל תתקשר", "אל תתקשרו", "תפסיקו להתקשר", "not interested", "stop calling",
		"remove me",
	},

	Negators: []string{"לא", "לאו", "no", "not", "isnt"},

	StopWords: []string{
		"שלום", "היי", "הי", "אהלן", "כן", "לא", "אה", "אמ", "אממ", "אמממ", "אוקיי", "אוקי",
		"שמי", "קוראים", "לי", "אני", "השם", "שלי", "הוא", "זה", "טוב", "רגע", "בסדר", "תודה",
		"מה", "מי", "סליחה", "ממש", "טעות", "שלילי", "נכון", "בטוח", "בטח", "בדיוק", "כמובן", "ברור",
		"סבבה", "hello", "hi", "yes", "yeah", "yep", "ok", "okay", "correct", "sure", "no", "not",
		"nope", "wrong", "um", "uh", "my", "name", "is", "its", "im",
	},
	Digits: map[string]byte{
		"אפס": '0',
		"אחת": '1', "אחד": '1',
		"שתיים": '2', "שתים": '2', "שניים": '2', "שנים": '2', "שתי": '2', "שני": '2',
		"שלוש": '3', "שלושה": '3', "שלש": '3',
		"ארבע": '4', "ארבעה": '4',
		"חמש": '5', "חמישה": '5', "חמשה": '5',
		"שש": '6', "שישה": '6', "ששה": '6',
		"שבע": '7', "שבעה": '7',
		"שמונה": '8',
		"תשע": '9', "תשעה": '9',
	},
	Conjunction: "ו",
}
