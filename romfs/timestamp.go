package romfs

import (
	"fmt"
	"time"
)

// timestampSize is the encoded size of a Timestamp.
const timestampSize = 6

// Timestamp is the packed modification time stored with each entry:
// seconds resolution, no time zone, years 1970 through 2225. Month and
// day are zero-based on flash and in this struct.
type Timestamp struct {
	YearsSince1970 uint8
	Month0         uint8 // 0 = January
	Day0           uint8 // 0 = first of the month
	Hour           uint8
	Minute         uint8
	Second         uint8
}

// TimestampOf converts t to its packed representation, interpreting it
// in UTC. It fails with ErrTimestampUnrepresentable for instants before
// 1970 or after the end of 2225.
func TimestampOf(t time.Time) (Timestamp, error) {
	t = t.UTC()
	year := t.Year()
	if year < 1970 || year > 1970+255 {
		return Timestamp{}, ErrTimestampUnrepresentable.New(year)
	}
	return Timestamp{
		YearsSince1970: uint8(year - 1970),
		Month0:         uint8(t.Month() - 1),
		Day0:           uint8(t.Day() - 1),
		Hour:           uint8(t.Hour()),
		Minute:         uint8(t.Minute()),
		Second:         uint8(t.Second()),
	}, nil
}

// validate range-checks every field. The year cannot be invalid: all
// 256 values are meaningful.
func (ts Timestamp) validate() error {
	for _, f := range []struct {
		name string
		val  uint8
		max  uint8
	}{
		{"month", ts.Month0, 11},
		{"day", ts.Day0, 30},
		{"hour", ts.Hour, 23},
		{"minute", ts.Minute, 59},
		{"second", ts.Second, 59},
	} {
		if f.val > f.max {
			return ErrTimestampOutOfRange.New(f.name, f.val, f.max)
		}
	}
	return nil
}

// Time returns the instant as a time.Time in UTC.
func (ts Timestamp) Time() time.Time {
	return time.Date(1970+int(ts.YearsSince1970), time.Month(ts.Month0)+1,
		int(ts.Day0)+1, int(ts.Hour), int(ts.Minute), int(ts.Second), 0, time.UTC)
}

// String formats the timestamp like 2023-11-12T20:05:16Z.
func (ts Timestamp) String() string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02dZ",
		1970+int(ts.YearsSince1970), ts.Month0+1, ts.Day0+1,
		ts.Hour, ts.Minute, ts.Second)
}

// decodeTimestamp reads the 6-byte packed form, rejecting out-of-range
// fields. b must hold at least timestampSize bytes.
func decodeTimestamp(b []byte) (Timestamp, error) {
	ts := Timestamp{
		YearsSince1970: b[0],
		Month0:         b[1],
		Day0:           b[2],
		Hour:           b[3],
		Minute:         b[4],
		Second:         b[5],
	}
	if err := ts.validate(); err != nil {
		return Timestamp{}, err
	}
	return ts, nil
}

// putTimestamp writes the 6-byte packed form into b, which must hold at
// least timestampSize bytes.
func putTimestamp(b []byte, ts Timestamp) {
	b[0] = ts.YearsSince1970
	b[1] = ts.Month0
	b[2] = ts.Day0
	b[3] = ts.Hour
	b[4] = ts.Minute
	b[5] = ts.Second
}
