package plandiff

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"alcyxob/coaching-platform/internal/domain"

	"golang.org/x/crypto/blake2b"
)

// hashedSession fixes the field set and order of the content fingerprint.
type hashedSession struct {
	WeekIndex       int     `json:"w"`
	Ordinal         int     `json:"o"`
	DayOfWeek       int     `json:"d"`
	Discipline      string  `json:"disc"`
	Type            string  `json:"t"`
	DurationMinutes int     `json:"min"`
	Notes           *string `json:"n"`
	Locked          bool    `json:"l"`
}

// SessionHash is the content fingerprint of a session, recorded at proposal
// creation and compared at approval to detect concurrent edits.
func SessionHash(s domain.Session) string {
	b, _ := json.Marshal(hashedSession{
		WeekIndex:       s.WeekIndex,
		Ordinal:         s.Ordinal,
		DayOfWeek:       int(s.DayOfWeek),
		Discipline:      s.Discipline,
		Type:            s.Type,
		DurationMinutes: s.DurationMinutes,
		Notes:           s.Notes,
		Locked:          s.Locked,
	})
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

const weekKeyPrefix = "week:"

// WeekKey is the baseline key of a week's membership fingerprint.
func WeekKey(index int) string {
	return weekKeyPrefix + strconv.Itoa(index)
}

func weekIndexOf(key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, weekKeyPrefix)
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(rest)
	return idx, err == nil
}

// WeekHash fingerprints the set of unlocked sessions in a week. Week-level
// ops scale whatever the week holds at apply time, so a session added to or
// unlocked in the week changes the outcome without touching any recorded hash.
func WeekHash(s *PlanState, index int) string {
	ids := []string{}
	for _, sess := range s.SessionsInWeek(index) {
		if !sess.Locked {
			ids = append(ids, sess.ID)
		}
	}
	sort.Strings(ids)
	b, _ := json.Marshal(ids)
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Baseline hashes every session the diff touches, plus the membership of
// every week a week-level op targets.
func Baseline(s *PlanState, d Diff) map[string]string {
	out := map[string]string{}
	for _, id := range TouchedSessionIDs(s, d) {
		sess, _ := s.Session(id)
		out[id] = SessionHash(*sess)
	}
	for _, op := range d {
		if idx, ok := WeekRef(op); ok {
			out[WeekKey(idx)] = WeekHash(s, idx)
		}
	}
	return out
}

// Drift returns the baseline keys whose live hash differs: session ids,
// including ids that no longer exist, and week keys whose membership moved.
func Drift(s *PlanState, baseline map[string]string) []string {
	var drifted []string
	for key, want := range baseline {
		if idx, ok := weekIndexOf(key); ok {
			if WeekHash(s, idx) != want {
				drifted = append(drifted, key)
			}
			continue
		}
		sess, ok := s.Session(key)
		if !ok || SessionHash(*sess) != want {
			drifted = append(drifted, key)
		}
	}
	sort.Strings(drifted)
	return drifted
}
