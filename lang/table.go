package lang

// table is the closed set of languages the translation service
// understands. It deliberately does not grow at runtime: adding a
// language means adding an entry here.
var table = []Language{
	{Code: "ar", Subtag: "ar", Label: "Arabic"},
	{Code: "ar-ae", Subtag: "ar", Label: "Arabic (UAE)"},
	{Code: "ar-sa", Subtag: "ar", Label: "Arabic (Saudi Arabia)"},
	{Code: "az", Subtag: "az", Label: "Azerbaijani"},
	{Code: "bg", Subtag: "bg", Label: "Bulgarian"},
	{Code: "bn", Subtag: "bn", Label: "Bengali"},
	{Code: "ca", Subtag: "ca", Label: "Catalan"},
	{Code: "cs", Subtag: "cs", Label: "Czech"},
	{Code: "da", Subtag: "da", Label: "Danish"},
	{Code: "de", Subtag: "de", Label: "German"},
	{Code: "de-at", Subtag: "de", Label: "German (Austria)"},
	{Code: "de-ch", Subtag: "de", Label: "German (Switzerland)"},
	{Code: "el", Subtag: "el", Label: "Greek"},
	{Code: "en", Subtag: "en", Label: "English"},
	{Code: "en-gb", Subtag: "en", Label: "English (UK)"},
	{Code: "en-us", Subtag: "en", Label: "English (US)"},
	{Code: "es", Subtag: "es", Label: "Spanish"},
	{Code: "es-mx", Subtag: "es", Label: "Spanish (Mexico)"},
	{Code: "es-us", Subtag: "es", Label: "Spanish (US)"},
	{Code: "et", Subtag: "et", Label: "Estonian"},
	{Code: "fa", Subtag: "fa", Label: "Persian"},
	{Code: "fi", Subtag: "fi", Label: "Finnish"},
	{Code: "fr", Subtag: "fr", Label: "French"},
	{Code: "fr-ca", Subtag: "fr", Label: "French (Canada)"},
	{Code: "he", Subtag: "he", Label: "Hebrew"},
	{Code: "hi", Subtag: "hi", Label: "Hindi"},
	{Code: "hr", Subtag: "hr", Label: "Croatian"},
	{Code: "hu", Subtag: "hu", Label: "Hungarian"},
	{Code: "id", Subtag: "id", Label: "Indonesian"},
	{Code: "it", Subtag: "it", Label: "Italian"},
	{Code: "ja", Subtag: "ja", Label: "Japanese"},
	{Code: "ko", Subtag: "ko", Label: "Korean"},
	{Code: "lt", Subtag: "lt", Label: "Lithuanian"},
	{Code: "lv", Subtag: "lv", Label: "Latvian"},
	{Code: "ms", Subtag: "ms", Label: "Malay"},
	{Code: "nl", Subtag: "nl", Label: "Dutch"},
	{Code: "no", Subtag: "no", Label: "Norwegian"},
	{Code: "pl", Subtag: "pl", Label: "Polish"},
	{Code: "pt", Subtag: "pt", Label: "Portuguese"},
	{Code: "pt-br", Subtag: "pt", Label: "Portuguese (Brazil)"},
	{Code: "ro", Subtag: "ro", Label: "Romanian"},
	{Code: "ru", Subtag: "ru", Label: "Russian"},
	{Code: "sk", Subtag: "sk", Label: "Slovak"},
	{Code: "sl", Subtag: "sl", Label: "Slovenian"},
	{Code: "sv", Subtag: "sv", Label: "Swedish"},
	{Code: "sw", Subtag: "sw", Label: "Swahili"},
	{Code: "th", Subtag: "th", Label: "Thai"},
	{Code: "tr", Subtag: "tr", Label: "Turkish"},
	{Code: "uk", Subtag: "uk", Label: "Ukrainian"},
	{Code: "ur", Subtag: "ur", Label: "Urdu"},
	{Code: "vi", Subtag: "vi", Label: "Vietnamese"},
	{Code: "zh", Subtag: "zh", Label: "Chinese"},
	{Code: "zh-cn", Subtag: "zh", Label: "Chinese (Simplified)"},
	{Code: "zh-tw", Subtag: "zh", Label: "Chinese (Traditional)"},
}
