// Package telephony wraps libphonenumber for the phone handling flows need:
// finding numbers in free text, normalizing numbers entered by hand or
// mangled by spreadsheets, and rendering stored numbers for display.
package telephony

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var candidateRegex = regexp.MustCompile(`\+?[0-9][0-9\-.()\s]{4,}[0-9]`)
var junkRegex = regexp.MustCompile(`[^0-9a-z+]`)
var nonAlphanumRegex = regexp.MustCompile(`[^0-9a-z]`)

// Find scans the given text for something that parses as a valid phone
// number for the given country and returns it in E.164 format. Candidates
// which are only missing their international prefix are retried with one.
func Find(text, country string) (string, bool) {
	for _, candidate := range candidateRegex.FindAllString(text, -1) {
		if e164, ok := parseValid(candidate, country); ok {
			return e164, true
		}
		if !strings.HasPrefix(candidate, "+") {
			if e164, ok := parseValid("+"+candidate, country); ok {
				return e164, true
			}
		}
	}
	return "", false
}

// Normalize cleans up a number as users and spreadsheets actually provide
// them: lowercased, stripped of punctuation, with Excel scientific notation
// corruption undone and a + prepended when it looks fully qualified. Returns
// the number in E.164 format and true if it parses as a valid number for the
// country, otherwise the cleaned digits and false.
func Normalize(number, country string) (string, bool) {
	number = strings.ToLower(number)

	// a number ending e+11 or e+12 is Excel corrupting it
	if strings.HasSuffix(number, "e+11") || strings.HasSuffix(number, "e+12") {
		number = strings.ReplaceAll(number[:len(number)-4], ".", "")
	}

	number = junkRegex.ReplaceAllString(number, "")

	if len(number) >= 11 && !strings.HasPrefix(number, "+") {
		number = "+" + number
	}

	if e164, ok := parseValid(number, country); ok {
		return e164, true
	}

	// must be a local number of some kind
	return nonAlphanumRegex.ReplaceAllString(number, ""), false
}

// NationalFormat renders a fully qualified number in its national format for
// display, e.g. +250788382382 becomes "0788 382 382". Numbers which don't
// parse are returned as given.
func NationalFormat(number string) string {
	if !strings.HasPrefix(number, "+") {
		return number
	}
	parsed, err := phonenumbers.Parse(number, "")
	if err != nil {
		return number
	}
	return phonenumbers.Format(parsed, phonenumbers.NATIONAL)
}

func parseValid(number, country string) (string, bool) {
	parsed, err := phonenumbers.Parse(number, country)
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return "", false
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), true
}
