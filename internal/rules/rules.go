// Package rules holds the static pattern rule set the scorer interprets.
// Rules are pure data: category → severity weight/label → compiled
// patterns. Adding a rule never requires touching the scorer.
package rules

import "regexp"

// Version identifies the rule set revision, recorded on policy events.
const Version = "2025.08.1"

// Category classifies what a rule detects.
type Category string

const (
	CategoryForbidden    Category = "forbidden"
	CategoryMedicalScope Category = "medical_scope"
	CategoryPrescriptive Category = "prescriptive"
	CategoryAlarming     Category = "alarming"
	CategorySuggestive   Category = "suggestive"
	CategoryCrisis       Category = "crisis"
)

// Severity is the reporting label attached to a violation.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// SuggestiveBonus is added to confidence once when any suggestive rule
// matches, regardless of how many do.
const SuggestiveBonus = 0.1

// Rule is a single case-insensitive matcher over normalized text.
//
// RE2's \b is an ASCII word boundary, so Cyrillic and CJK alternatives
// are kept outside the \b-anchored groups and matched unanchored.
type Rule struct {
	ID      string
	Pattern *regexp.Regexp
}

// Group is one negative category: every matching rule in it subtracts
// Weight from the confidence accumulator and records one violation.
type Group struct {
	Category Category
	Severity Severity
	Weight   float64
	Rules    []Rule
}

// Negative is evaluated in order; violation ordering follows this slice,
// then rule order within each group.
var Negative = []Group{
	{
		Category: CategoryForbidden,
		Severity: SeverityCritical,
		Weight:   0.5,
		Rules: []Rule{
			{"override-safety", regexp.MustCompile(`(?i)\b(ignore|disregard|forget|override)\s+(all\s+)?(previous|prior|your|the)\s+(instructions|guidelines|rules|safety\s+(instructions|guidelines|rules))\b`)},
			{"impersonate-clinician", regexp.MustCompile(`(?i)\b(pretend|act|roleplay|behave)\s+(to\s+be|as|like)\s+(a\s+|an\s+)?(licensed\s+|real\s+)?(doctor|physician|psychiatrist|therapist|nurse|pharmacist)\b`)},
			{"unregulated-supply", regexp.MustCompile(`(?i)\b(buy|order|obtain|get|source)\s+(prescription\s+(drugs|medication|meds)|controlled\s+substances?|antibiotics|opioids)\s+without\s+(a\s+)?prescription\b`)},
		},
	},
	{
		Category: CategoryMedicalScope,
		Severity: SeverityHigh,
		Weight:   0.4,
		Rules: []Rule{
			{"diagnosis-claim", regexp.MustCompile(`(?i)\b(diagnos(is|e|ed|es|ing)|diagn[oó]stic[oa]?s?|diagnostiqu[eée]\w*|diagnostizier\w*|diagnosi)\b|диагноз|диагностир|诊断|診断`)},
			{"condition-name", regexp.MustCompile(`(?i)\b(sleep\s+apn(o)?ea|diabetes|diab[eè]te|hypertension|hipertensi[oó]n|arrhythmia|atrial\s+fibrillation|afib|tachycardia|bradycardia|epilepsy|cancer|tumou?r|heart\s+(disease|failure)|clinical\s+depression|bipolar\s+disorder|schizophrenia|Krankheit|malattia|maladie|enfermedad|doen[çc]a)\b|болезн|диабет|гипертони|糖尿病|高血压|病気|不眠症`)},
			{"treatment-claim", regexp.MustCompile(`(?i)\b(cure[sd]?|cure\s+for|treatment\s+for|treats?\s+your|heals?\s+your|traitement|tratamiento|Behandlung|trattamento|tratamento)\b|лечени|вылечи|治疗|治療`)},
			{"test-interpretation", regexp.MustCompile(`(?i)\byour\s+(ecg|ekg|eeg|blood\s+(test|work)|lab\s+results?|mri|x[-\s]?ray)\s+(shows?|indicates?|confirms?|means?)\b`)},
		},
	},
	{
		Category: CategoryPrescriptive,
		Severity: SeverityHigh,
		Weight:   0.4,
		Rules: []Rule{
			{"dosing-numeric", regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s*(mg|mcg|ug|ml|cc|iu|units?|milligrams?|miligramos?|milligrammes?|Milligramm|milligrammi|miligramas?)\b|µg|миллиграмм|毫克|ミリグラム`)},
			{"dosing-vocabulary", regexp.MustCompile(`(?i)\b(dosage|dosis|posologie|Dosierung|dosaggio|dosagem)\b|дозировк|剂量|用量|服用量`)},
			{"medication-directive", regexp.MustCompile(`(?i)\b(stop|start|quit|skip|double|increase|decrease|taper)\s+(taking\s+)?(your\s+|the\s+)?(medication|medicine|meds|pills|antidepressants?|insulin|dose)\b`)},
			{"prescribing", regexp.MustCompile(`(?i)\b(prescri(bes?|bed|bing|ption)|recet(a|ar|ado)|prescri(re|t)|verschreib\w*|prescriv\w*)\b|прописыва|прописа|处方|処方`)},
		},
	},
	{
		Category: CategoryAlarming,
		Severity: SeverityMedium,
		Weight:   0.25,
		Rules: []Rule{
			{"fatal-language", regexp.MustCompile(`(?i)\b(life[-\s]?threatening|(could|may|might)\s+be\s+fatal|potentially\s+fatal|you\s+(could|might|may)\s+die|lebensbedrohlich|pericolo\s+di\s+vita|risco\s+de\s+(vida|morte)|peligro\s+de\s+muerte)\b|смертельн|危及生命|命に関わる`)},
			{"emergency-alarm", regexp.MustCompile(`(?i)\b(this\s+is\s+a\s+medical\s+emergency|go\s+to\s+the\s+(er|emergency\s+room)\s+(now|immediately|right\s+away)|call\s+911\s+(now|immediately|right\s+away))\b`)},
			{"danger-claim", regexp.MustCompile(`(?i)\b(you\s+(are|'re)\s+in\s+(serious\s+|grave\s+|immediate\s+)?danger|something\s+is\s+(seriously|terribly|very)\s+wrong\s+with\s+you)\b`)},
		},
	},
}

// Suggestive rules never constitute a violation; at least one match adds
// SuggestiveBonus to the confidence, once.
var Suggestive = []Rule{
	{"consult-professional", regexp.MustCompile(`(?i)\b(consult(ing)?|talk(ing)?\s+to|speak(ing)?\s+(with|to)|see(ing)?|reach(ing)?\s+out\s+to)\s+(a|your)\s+(doctor|physician|healthcare\s+(professional|provider)|medical\s+professional|specialist|mental\s+health\s+professional)\b`)},
	{"consult-professional-intl", regexp.MustCompile(`(?i)\b(consulta\w*\s+(a\s+)?(un\s+)?m[eé]dico|consultez\s+un\s+m[eé]decin|sprechen\s+sie\s+mit\s+(ihrem\s+|einem\s+)?arzt|consulta\s+il\s+(tuo\s+)?medico|consulte\s+(um\s+|seu\s+)?m[eé]dico)|обратит\w*\s*к\s*врачу|проконсультируйтесь|咨询医生|医師に相談`)},
	{"advice-disclaimer", regexp.MustCompile(`(?i)\b(this\s+is\s+not\s+medical\s+advice|not\s+a\s+substitute\s+for\s+professional\s+medical\s+advice|general\s+wellness\s+information(\s+only)?)\b`)},
}

// Crisis rules are detection-only: a match raises the crisis flag and
// triggers resource augmentation, never a violation or a block.
var Crisis = []Rule{
	{"self-harm-intent", regexp.MustCompile(`(?i)\b(kill(ing)?\s+(myself|himself|herself|themselves)|end(ing)?\s+(my|his|her|their)\s+(own\s+)?life|want\s+to\s+die|don'?t\s+want\s+to\s+(live|be\s+alive)|hurt(ing)?\s+myself|harm(ing)?\s+myself|self[-\s]?harm|cut(ting)?\s+myself)\b`)},
	{"suicide-vocabulary", regexp.MustCompile(`(?i)\b(suicide|suicidal|suicid(io|arme|er)|me\s+quiero\s+morir|je\s+veux\s+mourir|ich\s+will\s+(sterben|mich\s+umbringen)|voglio\s+(morire|uccidermi)|quero\s+(morrer|me\s+matar)|Selbstmord)\b|самоубийств|покончить\s+с\s+собой|хочу\s+умереть|自杀|想死|自殺|死にたい`)},
	{"harm-to-others", regexp.MustCompile(`(?i)\b(want\s+to\s+(hurt|kill|harm)\s+(someone|somebody|them|him|her|people)|going\s+to\s+(hurt|kill)\s+(someone|somebody))\b`)},
}
