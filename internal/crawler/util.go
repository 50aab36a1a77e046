package crawler

import (
	"regexp"
	"time"
)

// refMatches compiles pattern fresh on each call; the compiled pattern is
// not cached.
func refMatches(pattern, ref string) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(ref), nil
}

func secondsToDuration(s int) time.Duration {
	if s <= 0 {
		s = 300
	}
	return time.Duration(s) * time.Second
}
