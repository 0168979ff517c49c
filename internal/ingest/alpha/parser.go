package alpha

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Session is one workout block of an Alpha Progression export.
type Session struct {
	Name      string
	Date      time.Time
	Duration  time.Duration
	Exercises []Exercise
}

// Exercise is a numbered exercise within a session.
type Exercise struct {
	Number     int
	Name       string
	Equipment  string
	TargetReps int
	Dropsets   int
	Sets       []Set
}

// Set is a single working or warmup set.
type Set struct {
	Number           int
	WeightKg         float64
	IsBodyweightPlus bool
	Reps             int
	RIR              float64
	IsWarmup         bool
}

var (
	// "Session Name";"2026-02-19 4:54 h";"1:02 hr"
	sessionHeaderRe = regexp.MustCompile(`^"(.+)";"(\d{4}-\d{2}-\d{2}\s+\d+:\d+)\s+h";"(.+)"$`)

	// "1. Exercise Name · Equipment · 8 reps[· modifiers]"[;"warmup info"]
	exerciseHeaderRe = regexp.MustCompile(`^"(\d+)\.\s+(.+?)(?:\s+·\s+(\S.*?))?\s+·\s+(\d+)\s+reps(.*?)"(?:;"(.+)")?$`)

	// 1;115;8;1
	setDataRe = regexp.MustCompile(`^(\d+);(.+);(\d+);(.+)$`)

	// WU1 · 37,5 kg · 9 reps
	warmupRe = regexp.MustCompile(`WU(\d+)\s+·\s+(.+?)\s+kg\s+·\s+(\d+)\s+reps`)

	dropsetsRe = regexp.MustCompile(`(\d+)\s+dropsets?`)

	// 1:02 hr, 45 min
	durationRe = regexp.MustCompile(`^(?:(\d+):(\d{2})\s*hr?|(\d+)\s*min)$`)
)

const columnHeader = "#;KG;REPS;RIR"

type parser struct {
	sessions []Session
	session  *Session
	exercise *Exercise
}

func (p *parser) flushExercise() {
	if p.session != nil && p.exercise != nil {
		p.session.Exercises = append(p.session.Exercises, *p.exercise)
	}
	p.exercise = nil
}

func (p *parser) flushSession() {
	p.flushExercise()
	if p.session != nil {
		p.sessions = append(p.sessions, *p.session)
	}
	p.session = nil
}

// Parse reads an Alpha Progression CSV export. Sessions are separated by
// blank lines; unrecognised lines are skipped.
func Parse(r io.Reader) ([]Session, error) {
	var p parser
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			p.flushSession()

		case line == columnHeader:

		case sessionHeaderRe.MatchString(line):
			m := sessionHeaderRe.FindStringSubmatch(line)
			p.flushSession()
			date, err := parseSessionDate(m[2])
			if err != nil {
				return nil, fmt.Errorf("parsing session date %q: %w", m[2], err)
			}
			p.session = &Session{Name: m[1], Date: date, Duration: parseDuration(m[3])}

		case exerciseHeaderRe.MatchString(line):
			m := exerciseHeaderRe.FindStringSubmatch(line)
			if p.session == nil {
				return nil, fmt.Errorf("exercise without session: %q", line)
			}
			p.flushExercise()
			num, _ := strconv.Atoi(m[1])
			target, _ := strconv.Atoi(m[4])
			ex := &Exercise{
				Number:     num,
				Name:       strings.TrimSpace(m[2]),
				Equipment:  strings.TrimSpace(m[3]),
				TargetReps: target,
			}
			if d := dropsetsRe.FindStringSubmatch(m[5]); d != nil {
				ex.Dropsets, _ = strconv.Atoi(d[1])
			}
			if m[6] != "" {
				ex.Sets = append(ex.Sets, parseWarmups(m[6])...)
			}
			p.exercise = ex

		case setDataRe.MatchString(line):
			m := setDataRe.FindStringSubmatch(line)
			if p.exercise == nil {
				return nil, fmt.Errorf("set data without exercise: %q", line)
			}
			num, _ := strconv.Atoi(m[1])
			weight, bw := parseWeight(m[2])
			reps, _ := strconv.Atoi(m[3])
			p.exercise.Sets = append(p.exercise.Sets, Set{
				Number:           num,
				WeightKg:         weight,
				IsBodyweightPlus: bw,
				Reps:             reps,
				RIR:              parseEuropeanFloat(m[4]),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}
	p.flushSession()
	return p.sessions, nil
}

// parseSessionDate accepts "2026-02-19 4:54" and "2026-02-19 16:54".
func parseSessionDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02 3:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse date %q", s)
}

// parseDuration reads "1:02 hr" or "45 min"; anything else is zero.
func parseDuration(s string) time.Duration {
	m := durationRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}
	if m[3] != "" {
		mins, _ := strconv.Atoi(m[3])
		return time.Duration(mins) * time.Minute
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	return time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute
}

// parseWarmups reads "WU1 · 37,5 kg · 9 reps<br>WU2 · 72,5 kg · 7 reps".
func parseWarmups(s string) []Set {
	var sets []Set
	for _, part := range strings.Split(s, "<br>") {
		m := warmupRe.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		weight, bw := parseWeight(m[2])
		reps, _ := strconv.Atoi(m[3])
		sets = append(sets, Set{Number: num, WeightKg: weight, IsBodyweightPlus: bw, Reps: reps, IsWarmup: true})
	}
	return sets
}

// parseWeight handles European decimals and bodyweight-plus notation:
// "+35" is (35, true), "102,5" is (102.5, false).
func parseWeight(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "+"); ok {
		return parseEuropeanFloat(rest), true
	}
	return parseEuropeanFloat(s), false
}

func parseEuropeanFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
	return f
}
