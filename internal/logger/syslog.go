//go:build !windows && !plan9

package logger

import "log/syslog"

// DefaultSyslogTag is the program tag attached to syslog records.
const DefaultSyslogTag = "pam_single_kcm_cache"

func dialSyslog(tag string) (SyslogWriter, error) {
	if tag == "" {
		tag = DefaultSyslogTag
	}
	return syslog.New(syslog.LOG_AUTHPRIV|syslog.LOG_INFO, tag)
}
