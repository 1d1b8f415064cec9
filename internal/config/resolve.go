package config

import (
	"fmt"
	"strconv"
	"strings"

	"rotabot/internal/rotation"
	"rotabot/internal/schedule"
	kit "rotabot/internal/transport"
)

// Rule parses the schedule section. It is called on every use, so edits
// to the file apply on the next query.
func (c *Config) Rule() (schedule.Rule, error) {
	s := c.Schedule
	return schedule.ParseRule(schedule.RuleSpec{
		TimeZone:    s.TimeZone,
		Frequency:   s.Frequency,
		Interval:    s.Interval,
		DayOfWeek:   s.DayOfWeek,
		Time:        s.Time,
		MonthlyWeek: s.MonthlyWeek,
		AnchorDate:  s.AnchorDate,
	})
}

// AdvanceRoles returns the roles the advance loop rotates; empty means all.
func (c *Config) AdvanceRoles() ([]rotation.Role, error) {
	if len(c.Advance.Roles) == 0 {
		return rotation.Roles(), nil
	}
	return rotation.ParseRoles(c.Advance.Roles)
}

func (c *Config) AnnounceTarget() kit.ChatTarget {
	return kit.ChatTarget{ChatID: c.Announce.ChatID, ThreadID: c.Announce.ThreadID}
}

// IsOwner reports whether id is listed in telegram.owner_user_ids.
func (c *Config) IsOwner(id int64) bool {
	for _, o := range c.Telegram.OwnerUserIDs {
		if o == id {
			return true
		}
	}
	return false
}

// ParseChatTarget parses "<chat_id>" or "<chat_id>:<thread_id>". Empty
// input yields the zero target.
func ParseChatTarget(s string) (kit.ChatTarget, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return kit.ChatTarget{}, nil
	}
	chat, thread, hasThread := strings.Cut(s, ":")
	id, err := strconv.ParseInt(strings.TrimSpace(chat), 10, 64)
	if err != nil || id == 0 {
		return kit.ChatTarget{}, fmt.Errorf("invalid chat id %q", chat)
	}
	t := kit.ChatTarget{ChatID: id}
	if hasThread {
		tid, err := strconv.Atoi(strings.TrimSpace(thread))
		if err != nil || tid < 0 {
			return kit.ChatTarget{}, fmt.Errorf("invalid thread id %q", thread)
		}
		t.ThreadID = tid
	}
	return t, nil
}
