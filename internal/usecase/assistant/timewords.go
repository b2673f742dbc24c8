package assistant

import "regexp"

var timeMention = regexp.MustCompile(`(?i)` +
	`\d{1,2}[:.]\d{2}` + // 9:30, 03.06
	`|\d{4}-\d{2}-\d{2}` +
	`|\b\d{1,2}\s*(am|pm)\b` +
	`|\b(today|tomorrow|yesterday|tonight|morning|evening|noon|midnight|weekend` +
	`|monday|tuesday|wednesday|thursday|friday|saturday|sunday` +
	`|january|february|march|april|may|june|july|august|september|october|november|december` +
	`|hours?|minutes?|days?|weeks?|months?|years?)\b` +
	`|(сегодня|завтра|послезавтра|вчера|утр|вечер|ночью|днём|днем` +
	`|понедельник|вторник|сред|четверг|пятниц|суббот|воскресень` +
	`|январ|феврал|март|апрел|ма[йя]|июн|июл|август|сентябр|октябр|ноябр|декабр` +
	`|час|минут|недел|месяц)`)

// MentionsTime reports whether text names a date, a time of day or a period.
func MentionsTime(text string) bool {
	return timeMention.MatchString(text)
}
