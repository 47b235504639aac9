package encoding

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// Timezone kinds stored with inline date/time payloads. xsd date/time
// values may omit the timezone entirely, which is distinct from UTC.
const (
	tzNone   byte = 0
	tzOffset byte = 1
)

// encodeDateTime inlines a canonical xsd:dateTime lexical form:
// seconds-since-epoch (8 bytes), nanoseconds (4), tz kind (1), tz offset
// minutes (2).
func encodeDateTime(lexical string) (EncodedTerm, bool) {
	var enc EncodedTerm
	t, tzKind, offset, ok := parseDateTimeLexical(lexical)
	if !ok || formatDateTimeLexical(t, tzKind, offset) != lexical {
		return enc, false
	}
	enc[0] = TagDateTime
	binary.BigEndian.PutUint64(enc[1:9], uint64(t.Unix()))
	binary.BigEndian.PutUint32(enc[9:13], uint32(t.Nanosecond()))
	enc[13] = tzKind
	binary.BigEndian.PutUint16(enc[14:16], uint16(int16(offset)))
	return enc, true
}

func decodeDateTime(payload []byte) string {
	secs := int64(binary.BigEndian.Uint64(payload[0:8]))
	nanos := int64(binary.BigEndian.Uint32(payload[8:12]))
	tzKind := payload[12]
	offset := int16(binary.BigEndian.Uint16(payload[13:15]))
	t := time.Unix(secs, nanos).UTC()
	return formatDateTimeLexical(t, tzKind, int(offset))
}

// parseDateTimeLexical parses "YYYY-MM-DDThh:mm:ss[.fff][Z|±hh:mm]".
// The time.Time is normalized to the UTC instant; offset is the declared
// timezone in minutes.
func parseDateTimeLexical(s string) (time.Time, byte, int, bool) {
	datePart, timePart, tzKind, offset, ok := splitTimezone(s)
	if !ok {
		return time.Time{}, 0, 0, false
	}
	// The fractional pattern is optional during parsing
	t, err := time.Parse("2006-01-02T15:04:05.999999999", datePart+"T"+timePart)
	if err != nil {
		return time.Time{}, 0, 0, false
	}
	return t.Add(-time.Duration(offset) * time.Minute), tzKind, offset, true
}

// splitTimezone separates the timezone designator from a dateTime lexical
// form and returns date and time parts.
func splitTimezone(s string) (datePart, timePart string, tzKind byte, offset int, ok bool) {
	tzKind = tzNone
	body := s
	switch {
	case strings.HasSuffix(s, "Z"):
		tzKind = tzOffset
		body = s[:len(s)-1]
	case len(s) >= 6 && (s[len(s)-6] == '+' || s[len(s)-6] == '-') && s[len(s)-3] == ':':
		tzKind = tzOffset
		sign := 1
		if s[len(s)-6] == '-' {
			sign = -1
		}
		var hh, mm int
		if _, err := fmt.Sscanf(s[len(s)-5:], "%02d:%02d", &hh, &mm); err != nil {
			return "", "", 0, 0, false
		}
		if hh > 14 || mm > 59 {
			return "", "", 0, 0, false
		}
		offset = sign * (hh*60 + mm)
		body = s[:len(s)-6]
	}
	var okSplit bool
	datePart, timePart, okSplit = strings.Cut(body, "T")
	if !okSplit {
		return "", "", 0, 0, false
	}
	return datePart, timePart, tzKind, offset, true
}

func formatDateTimeLexical(t time.Time, tzKind byte, offset int) string {
	local := t.Add(time.Duration(offset) * time.Minute)
	base := local.Format("2006-01-02T15:04:05")
	if ns := local.Nanosecond(); ns != 0 {
		base = local.Format("2006-01-02T15:04:05.999999999")
	}
	return base + formatTZ(tzKind, offset)
}

func formatTZ(tzKind byte, offset int) string {
	if tzKind == tzNone {
		return ""
	}
	if offset == 0 {
		return "Z"
	}
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("%s%02d:%02d", sign, offset/60, offset%60)
}

// encodeDate inlines a canonical xsd:date: seconds at UTC midnight of the
// day plus the timezone designator.
func encodeDate(lexical string) (EncodedTerm, bool) {
	var enc EncodedTerm
	body, tzKind, offset, ok := cutTZ(lexical)
	if !ok {
		return enc, false
	}
	t, err := time.Parse("2006-01-02", body)
	if err != nil || t.Format("2006-01-02") != body {
		return enc, false
	}
	enc[0] = TagDate
	binary.BigEndian.PutUint64(enc[1:9], uint64(t.Unix()))
	enc[9] = tzKind
	binary.BigEndian.PutUint16(enc[10:12], uint16(int16(offset)))
	return enc, true
}

func decodeDate(payload []byte) string {
	secs := int64(binary.BigEndian.Uint64(payload[0:8]))
	tzKind := payload[8]
	offset := int16(binary.BigEndian.Uint16(payload[9:11]))
	t := time.Unix(secs, 0).UTC()
	return t.Format("2006-01-02") + formatTZ(tzKind, int(offset))
}

// encodeTime inlines a canonical xsd:time: nanoseconds of day plus the
// timezone designator.
func encodeTime(lexical string) (EncodedTerm, bool) {
	var enc EncodedTerm
	body, tzKind, offset, ok := cutTZ(lexical)
	if !ok {
		return enc, false
	}
	layout := "15:04:05"
	if strings.Contains(body, ".") {
		layout = "15:04:05.999999999"
	}
	t, err := time.Parse(layout, body)
	if err != nil {
		return enc, false
	}
	nanosOfDay := int64(t.Hour())*3600*1e9 + int64(t.Minute())*60*1e9 +
		int64(t.Second())*1e9 + int64(t.Nanosecond())
	if formatTimeOfDay(nanosOfDay) != body {
		return enc, false
	}
	enc[0] = TagTime
	binary.BigEndian.PutUint64(enc[1:9], uint64(nanosOfDay))
	enc[9] = tzKind
	binary.BigEndian.PutUint16(enc[10:12], uint16(int16(offset)))
	return enc, true
}

func decodeTime(payload []byte) string {
	nanosOfDay := int64(binary.BigEndian.Uint64(payload[0:8]))
	tzKind := payload[8]
	offset := int16(binary.BigEndian.Uint16(payload[9:11]))
	return formatTimeOfDay(nanosOfDay) + formatTZ(tzKind, int(offset))
}

func formatTimeOfDay(nanosOfDay int64) string {
	t := time.Unix(0, nanosOfDay).UTC()
	if t.Nanosecond() != 0 {
		return t.Format("15:04:05.999999999")
	}
	return t.Format("15:04:05")
}

// cutTZ removes a trailing timezone designator from a date or time lexical
// form.
func cutTZ(s string) (body string, tzKind byte, offset int, ok bool) {
	tzKind = tzNone
	switch {
	case strings.HasSuffix(s, "Z"):
		return s[:len(s)-1], tzOffset, 0, true
	case len(s) >= 6 && (s[len(s)-6] == '+' || s[len(s)-6] == '-') && s[len(s)-3] == ':':
		sign := 1
		if s[len(s)-6] == '-' {
			sign = -1
		}
		var hh, mm int
		if _, err := fmt.Sscanf(s[len(s)-5:], "%02d:%02d", &hh, &mm); err != nil {
			return "", 0, 0, false
		}
		if hh > 14 || mm > 59 {
			return "", 0, 0, false
		}
		return s[:len(s)-6], tzOffset, sign * (hh*60 + mm), true
	default:
		return s, tzNone, 0, true
	}
}
