package timeutil

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

type dateLayout struct {
	re       *regexp.Regexp
	order    [3]int // submatch index of day, month, year; 0 = absent
	shortYr  bool
	rollOver bool
}

// Tried in order; first match wins.
var dateLayouts = []dateLayout{
	{re: regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`), order: [3]int{1, 2, 3}},
	{re: regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2})$`), order: [3]int{1, 2, 3}, shortYr: true},
	{re: regexp.MustCompile(`^(\d{1,2})/(\d{1,2})$`), order: [3]int{1, 2, 0}, rollOver: true},
	{re: regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`), order: [3]int{3, 2, 1}},
	{re: regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`), order: [3]int{1, 2, 3}},
	{re: regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{2})$`), order: [3]int{1, 2, 3}, shortYr: true},
	{re: regexp.MustCompile(`^(\d{1,2})-(\d{1,2})$`), order: [3]int{1, 2, 0}, rollOver: true},
}

// ParseDate parses dd/mm/yyyy, dd/mm/yy, dd/mm, ISO yyyy-mm-dd and the dashed
// dd-mm variants. A missing year means the current one, moved to next year
// when the date has already passed relative to today.
func ParseDate(text string, today civil.Date) (civil.Date, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return civil.Date{}, false
	}
	for _, layout := range dateLayouts {
		m := layout.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		day, _ := strconv.Atoi(m[layout.order[0]])
		month, _ := strconv.Atoi(m[layout.order[1]])
		year := today.Year
		if layout.order[2] != 0 {
			year, _ = strconv.Atoi(m[layout.order[2]])
			if layout.shortYr {
				year = expandShortYear(year)
			}
		}
		d := civil.Date{Year: year, Month: time.Month(month), Day: day}
		if !d.IsValid() {
			continue
		}
		if layout.rollOver && d.Before(today) {
			d.Year++
			if !d.IsValid() {
				return civil.Date{}, false
			}
		}
		return d, true
	}
	return civil.Date{}, false
}

// expandShortYear follows the POSIX %y pivot: 69-99 map to 19xx, 00-68 to 20xx.
func expandShortYear(y int) int {
	if y >= 69 {
		return 1900 + y
	}
	return 2000 + y
}

var (
	timeHMS      = regexp.MustCompile(`^(\d{1,2}):(\d{1,2}):(\d{1,2})$`)
	timeHM       = regexp.MustCompile(`^(\d{1,2}):(\d{1,2})$`)
	timeHHMM     = regexp.MustCompile(`^(\d{1,2})(\d{2})$`)
	timeBare     = regexp.MustCompile(`^\d{1,2}$`)
	hourSuffixes = []string{"hrs", "hr", "hs"}
)

// ParseTime accepts HH:MM:SS, HH:MM, HHhMM, "HH h MM", HHMM and a bare hour,
// in that order. Trailing hs/hrs/hr suffixes are ignored.
func ParseTime(text string) (civil.Time, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return civil.Time{}, false
	}
	for _, suffix := range hourSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}
	s = strings.ReplaceAll(s, "h", ":")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimSuffix(s, ":")

	if m := timeHMS.FindStringSubmatch(s); m != nil {
		return clockTime(m[1], m[2], m[3])
	}
	if m := timeHM.FindStringSubmatch(s); m != nil {
		return clockTime(m[1], m[2], "0")
	}
	if m := timeHHMM.FindStringSubmatch(s); m != nil {
		return clockTime(m[1], m[2], "0")
	}
	if timeBare.MatchString(s) {
		return clockTime(s, "0", "0")
	}
	return civil.Time{}, false
}

func clockTime(h, m, s string) (civil.Time, bool) {
	hour, _ := strconv.Atoi(h)
	minute, _ := strconv.Atoi(m)
	second, _ := strconv.Atoi(s)
	t := civil.Time{Hour: hour, Minute: minute, Second: second}
	if !t.IsValid() {
		return civil.Time{}, false
	}
	return t, true
}

var relativeDays = map[string]int{
	"hoje":             0,
	"hj":               0,
	"amanhã":           1,
	"amanha":           1,
	"depois de amanhã": 2,
	"depois de amanha": 2,
}

// WeekdayIndex maps Portuguese weekday names and abbreviations to Monday=0.
var WeekdayIndex = map[string]int{
	"segunda": 0, "segunda-feira": 0, "seg": 0,
	"terça": 1, "terca": 1, "terça-feira": 1, "terca-feira": 1, "ter": 1,
	"quarta": 2, "quarta-feira": 2, "qua": 2,
	"quinta": 3, "quinta-feira": 3, "qui": 3,
	"sexta": 4, "sexta-feira": 4, "sex": 4,
	"sábado": 5, "sabado": 5, "sab": 5,
	"domingo": 6, "dom": 6,
}

var nextQualifiers = strings.NewReplacer("próxima", "", "próximo", "", "proxima", "", "proximo", "")

// ParseRelativeDate resolves hoje/amanhã/depois de amanhã and weekday names.
// A weekday always resolves to a future date: naming today's own weekday
// yields the same weekday next week.
func ParseRelativeDate(text string, today civil.Date) (civil.Date, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if offset, ok := relativeDays[s]; ok {
		return today.AddDays(offset), true
	}
	s = strings.TrimSpace(nextQualifiers.Replace(s))
	if target, ok := WeekdayIndex[s]; ok {
		return NextWeekday(today, target), true
	}
	return civil.Date{}, false
}

// NextWeekday returns the next date after today falling on target (Monday=0).
func NextWeekday(today civil.Date, target int) civil.Date {
	ahead := target - MondayIndex(today)
	if ahead <= 0 {
		ahead += 7
	}
	return today.AddDays(ahead)
}
