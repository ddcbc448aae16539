package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Mode controls what a Parser will try to extract from a piece of text.
type Mode int

const (
	// ModeDate extracts a calendar date only.
	ModeDate Mode = iota
	// ModeDateTime extracts a date followed by a time.
	ModeDateTime
	// ModeTime extracts a wall-clock time only.
	ModeTime
	// ModeAuto extracts a date, or a datetime when a time is also present.
	ModeAuto
)

type component int

const (
	compYear component = iota // 99 or 1999
	compMonth                 // 1 or Jan
	compDay
	compHour
	compMinute
	compHourAndMinute // e.g. 1400
	compSecond
	compAmPm
)

const (
	markerAM = 0
	markerPM = 1
)

var dateSequencesDayFirst = [][]component{
	{compDay, compMonth, compYear},
	{compMonth, compDay, compYear},
	{compYear, compMonth, compDay},
	{compDay, compMonth},
	{compMonth, compDay},
	{compMonth, compYear},
}

var dateSequencesMonthFirst = [][]component{
	{compMonth, compDay, compYear},
	{compDay, compMonth, compYear},
	{compYear, compMonth, compDay},
	{compMonth, compDay},
	{compDay, compMonth},
	{compMonth, compYear},
}

var timeSequences = [][]component{
	{compHourAndMinute},
	{compHour, compMinute},
	{compHour, compMinute, compAmPm},
	{compHour, compMinute, compSecond},
	{compHour, compMinute, compSecond, compAmPm},
}

var tokenRegex = regexp.MustCompile(`[0-9]+|\w+`)

// Parser is a tolerant parser for dates and times written by humans, e.g.
// "1/2/34", "15th Aug", "tomorrow at 2pm". Parsing happens relative to a
// current instant and timezone, with a style deciding day/month ambiguity.
type Parser struct {
	now   time.Time
	tz    *time.Location
	style Style
}

// NewParser creates a parser which resolves relative and two-digit years
// against now, and interprets times in tz.
func NewParser(now time.Time, tz *time.Location, style Style) *Parser {
	return &Parser{now: now, tz: tz, style: style}
}

// Auto parses text as a date, or a datetime if time information is present.
// The result is a Date or a time.Time, or nil if nothing could be parsed.
func (p *Parser) Auto(text string) any {
	return p.parse(text, ModeAuto)
}

// Time parses a wall-clock time from the given text.
func (p *Parser) Time(text string) (TimeOfDay, bool) {
	v := p.parse(text, ModeTime)
	if t, ok := v.(TimeOfDay); ok {
		return t, true
	}
	return TimeOfDay{}, false
}

// Parse parses text in the given mode, returning a Date, time.Time or
// TimeOfDay depending on what was found, or nil for no parse.
func (p *Parser) Parse(text string, mode Mode) any {
	return p.parse(text, mode)
}

func (p *Parser) parse(text string, mode Mode) any {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	// split the text into numerical and text tokens, and get the possible
	// component types of each one
	tokens := tokenRegex.FindAllString(text, -1)
	possibilities := make([]map[component]int, 0, len(tokens))
	for _, token := range tokens {
		poss := tokenPossibilities(token, mode)
		if len(poss) > 0 {
			possibilities = append(possibilities, poss)
		}
	}

	// find the first component sequence that matches the tokens and forms a
	// valid date or time
	for _, seq := range possibleSequences(mode, len(possibilities), p.style) {
		match := make(map[component]int, len(seq))
		matched := true
		for i, comp := range seq {
			value, ok := possibilities[i][comp]
			if !ok {
				matched = false
				break
			}
			match[comp] = value
		}
		if !matched {
			continue
		}
		if result := p.makeResult(match); result != nil {
			return result
		}
	}
	return nil
}

// possibleSequences returns the component sequences of the given length that
// could be tried in the given mode, in order of preference.
func possibleSequences(mode Mode, length int, style Style) [][]component {
	dateSequences := dateSequencesDayFirst
	if style == MonthFirst {
		dateSequences = dateSequencesMonthFirst
	}

	var sequences [][]component

	switch mode {
	case ModeDate, ModeAuto:
		for _, seq := range dateSequences {
			if len(seq) == length {
				sequences = append(sequences, seq)
			}
		}
	case ModeTime:
		for _, seq := range timeSequences {
			if len(seq) == length {
				sequences = append(sequences, seq)
			}
		}
	}

	if mode == ModeDateTime || mode == ModeAuto {
		for _, dateSeq := range dateSequences {
			for _, timeSeq := range timeSequences {
				if len(dateSeq)+len(timeSeq) == length {
					combined := make([]component, 0, length)
					combined = append(combined, dateSeq...)
					combined = append(combined, timeSeq...)
					sequences = append(sequences, combined)
				}
			}
		}
	}
	return sequences
}

// tokenPossibilities returns all possible component types of a token without
// regard to its context. For example "26" could be a year, day or minute, but
// can't be a month or an hour.
func tokenPossibilities(token string, mode Mode) map[component]int {
	token = strings.ToLower(strings.TrimSpace(token))
	possibilities := make(map[component]int, 4)

	if asInt, err := strconv.Atoi(token); err == nil {
		if mode != ModeTime {
			if asInt >= 1 && asInt <= 9999 && (len(token) == 2 || len(token) == 4) {
				possibilities[compYear] = asInt
			}
			if asInt >= 1 && asInt <= 12 {
				possibilities[compMonth] = asInt
			}
			if asInt >= 1 && asInt <= 31 {
				possibilities[compDay] = asInt
			}
		}
		if mode != ModeDate {
			if asInt >= 0 && asInt <= 23 {
				possibilities[compHour] = asInt
			}
			if asInt >= 0 && asInt <= 59 {
				possibilities[compMinute] = asInt
				possibilities[compSecond] = asInt
			}
			if len(token) == 4 {
				hour, minute := asInt/100, asInt%100
				if hour >= 1 && hour <= 24 && minute >= 1 && minute <= 59 {
					possibilities[compHourAndMinute] = asInt
				}
			}
		}
	} else {
		if mode != ModeTime {
			if month, ok := monthsByAlias[token]; ok {
				possibilities[compMonth] = int(month)
			}
		}
		if mode != ModeDate {
			switch token {
			case "am":
				possibilities[compAmPm] = markerAM
			case "pm":
				possibilities[compAmPm] = markerPM
			}
		}
	}
	return possibilities
}

// makeResult builds a Date, time.Time or TimeOfDay from matched component
// values, or nil if they don't form a valid value.
func (p *Parser) makeResult(values map[component]int) any {
	var date *Date
	var clock *TimeOfDay

	if month, ok := values[compMonth]; ok {
		year := p.now.Year()
		if y, ok := values[compYear]; ok {
			year = y
		}
		year = yearFrom2Digits(year, p.now.Year())
		day := 1
		if d, ok := values[compDay]; ok {
			day = d
		}
		d := Date{Year: year, Month: time.Month(month), Day: day}
		if !d.Valid() {
			return nil
		}
		date = &d
	}

	_, hasHour := values[compHour]
	_, hasMinute := values[compMinute]
	combined, hasCombined := values[compHourAndMinute]

	if (hasHour && hasMinute) || hasCombined {
		var hour, minute, second int
		if hasCombined {
			hour, minute = combined/100, combined%100
		} else {
			hour = values[compHour]
			minute = values[compMinute]
			second = values[compSecond]

			if hour <= 12 && values[compAmPm] == markerPM {
				hour += 12
			}
		}
		if hour > 23 || minute > 59 || second > 59 {
			return nil
		}
		t := TimeOfDay{Hour: hour, Minute: minute, Second: second}
		clock = &t
	}

	switch {
	case date != nil && clock != nil:
		return clock.On(*date, p.tz)
	case date != nil:
		return *date
	case clock != nil:
		return *clock
	}
	return nil
}

// yearFrom2Digits converts a two-digit year to the absolute year within 50
// years of the current one.
func yearFrom2Digits(shortYear, currentYear int) int {
	if shortYear < 100 {
		shortYear += currentYear - (currentYear % 100)
		if abs(shortYear-currentYear) >= 50 {
			if shortYear < currentYear {
				return shortYear + 100
			}
			return shortYear - 100
		}
	}
	return shortYear
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
