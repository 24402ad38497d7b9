package conversation

import (
	"regexp"
	"strconv"
	"time"

	"storebot/pkg/textnorm"
)

// ReminderConfig bounds reading reminders.
type ReminderConfig struct {
	Default time.Duration `mapstructure:"default"`
	Min     time.Duration `mapstructure:"min"`
	Max     time.Duration `mapstructure:"max"`
}

// DefaultReminderConfig returns 30 minutes clamped to [1m, 24h].
func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		Default: 30 * time.Minute,
		Min:     time.Minute,
		Max:     24 * time.Hour,
	}
}

func (c ReminderConfig) withDefaults() ReminderConfig {
	d := DefaultReminderConfig()
	if c.Default <= 0 {
		c.Default = d.Default
	}
	if c.Min <= 0 {
		c.Min = d.Min
	}
	if c.Max <= 0 {
		c.Max = d.Max
	}
	if c.Max < c.Min {
		c.Max = c.Min
	}
	return c
}

var delayPattern = regexp.MustCompile(`(\d{1,5})\s*(minutes?|mins?|m|hours?|hrs?|h|phut|gio|tieng)\b`)

// ParseDelay reads "in 20 minutes", "2 hours" or "15 phút" from utterance.
// Without a number it returns cfg.Default. The result is clamped.
func ParseDelay(utterance string, cfg ReminderConfig) time.Duration {
	cfg = cfg.withDefaults()
	d := cfg.Default

	if m := delayPattern.FindStringSubmatch(textnorm.Fold(utterance)); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			switch m[2] {
			case "h", "hour", "hours", "hr", "hrs", "gio", "tieng":
				d = time.Duration(n) * time.Hour
			default:
				d = time.Duration(n) * time.Minute
			}
		}
	}

	return min(max(d, cfg.Min), cfg.Max)
}

// timer is the part of *time.Timer the controller needs.
type timer interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) timer

func realAfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

func formatDelay(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return strconv.Itoa(h) + " hours"
	}
	m := int(d.Round(time.Minute) / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return strconv.Itoa(m) + " minutes"
}
