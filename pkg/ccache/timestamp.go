package ccache

import "time"

// Timestamp is a Kerberos timestamp: seconds since the Unix epoch stored in
// 32 bits. Values wrap, so ordering uses serial-number arithmetic.
type Timestamp uint32

// TimestampOf truncates t to a Timestamp.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp(uint32(t.Unix()))
}

// After reports whether t comes after u. The difference is taken modulo 2^32
// and interpreted as signed, which keeps the comparison correct across a wrap.
func (t Timestamp) After(u Timestamp) bool {
	return int32(uint32(t)-uint32(u)) > 0
}

// Add returns t shifted by d, truncated to whole seconds.
func (t Timestamp) Add(d time.Duration) Timestamp {
	secs := int64(d / time.Second)
	return t + Timestamp(uint32(secs))
}

// IsZero reports whether the timestamp is unset.
func (t Timestamp) IsZero() bool {
	return t == 0
}

// Time converts the timestamp back to a time.Time.
func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t), 0)
}

// String formats the timestamp like klist does, or "-" when unset.
func (t Timestamp) String() string {
	if t.IsZero() {
		return "-"
	}
	return t.Time().Format("2006-01-02 15:04:05")
}
