//go:build windows || plan9

package logger

import "errors"

// DefaultSyslogTag is the program tag attached to syslog records.
const DefaultSyslogTag = "pam_single_kcm_cache"

func dialSyslog(string) (SyslogWriter, error) {
	return nil, errors.New("syslog is not supported on this platform")
}
