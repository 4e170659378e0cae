package easyplayer

import (
	"fmt"
	"strings"
)

// Mode selects which team naming table to use
type Mode int

const (
	ModeCS Mode = iota // Counter-Strike
	ModeTF             // Team Fortress
)

const (
	TeamUnassigned = 0
	TeamSpectator  = 1
)

var ModeNames = map[Mode]string{
	ModeCS: "cs",
	ModeTF: "tf",
}

var NameToMode = map[string]Mode{
	"cs": ModeCS,
	"tf": ModeTF,
}

// Names match the host's player filter keywords.
var teamNames = map[Mode][4]string{
	ModeCS: {"un", "spec", "t", "ct"},
	ModeTF: {"un", "spec", "red", "blue"},
}

func (m Mode) String() string {
	return ModeNames[m]
}

// ParseMode parses "cs" or "tf"
func ParseMode(s string) (Mode, error) {
	m, ok := NameToMode[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// TeamName looks up the name of team in mode's table
func TeamName(mode Mode, team int) (string, error) {
	names, ok := teamNames[mode]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownMode, mode)
	}
	if team < 0 || team >= len(names) {
		return "", fmt.Errorf("%w: %d", ErrTeamOutOfRange, team)
	}
	return names[team], nil
}

// ParseTeamName is the inverse of TeamName
func ParseTeamName(mode Mode, name string) (int, error) {
	names, ok := teamNames[mode]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownMode, mode)
	}
	for i, n := range names {
		if n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no %s team named %q", mode, name)
}

// TeamName returns the player's current team name for mode.
func (p *Player) TeamName(mode Mode) (string, error) {
	if p == nil || p.Entity == nil {
		return "", ErrNilPlayer
	}
	return TeamName(mode, p.Team())
}

// CSTeam returns the player's Counter-Strike team name
func (p *Player) CSTeam() (string, error) {
	return p.TeamName(ModeCS)
}

// TFTeam returns the player's Team Fortress team name
func (p *Player) TFTeam() (string, error) {
	return p.TeamName(ModeTF)
}
