package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts 5-field and 6-field (with seconds) specs plus descriptors.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule turns a poll schedule into a cron spec.
//
// Supported forms:
//   - Cron: "0 * * * * *", "*/2 * * * *", "@every 1m", "@hourly"
//   - Interval duration: "1m", "30s" (becomes "@every ...")
//   - Interval HH:MM: "00:05" (5 minutes)
func ParseSchedule(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("schedule required")
	}

	// Any whitespace or leading '@' => cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		if _, err := cronParser.Parse(s); err != nil {
			return "", fmt.Errorf("invalid cron schedule %q: %w", raw, err)
		}
		return s, nil
	}

	var d time.Duration
	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return "", fmt.Errorf("invalid minutes in %q", raw)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		d, err = time.ParseDuration(s)
		if err != nil {
			return "", fmt.Errorf(
				"invalid schedule %q (use cron like '0 * * * * *', HH:MM like '00:01', or duration like '1m')",
				raw,
			)
		}
	}
	if d <= 0 {
		return "", fmt.Errorf("interval must be > 0")
	}
	return "@every " + d.String(), nil
}
