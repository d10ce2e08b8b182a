// Package channeluri parses the driver's channel URI grammar:
// "aeron:(udp|ipc)?[params]" where params is a pipe (|)-separated list of
// key=value pairs (spec.md §6 "Channel URI grammar").
package channeluri

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

// Media is the channel's transport medium.
type Media string

const (
	MediaUDP Media = "udp"
	MediaIPC Media = "ipc"
)

// Recognised parameter keys (spec.md §6).
const (
	ParamEndpoint    = "endpoint"
	ParamInterface   = "interface"
	ParamControl     = "control"
	ParamControlMode = "control-mode"
	ParamMTU         = "mtu"
	ParamTermLength  = "term-length"
	ParamInitTermID  = "init-term-id"
	ParamTermID      = "term-id"
	ParamTermOffset  = "term-offset"
	ParamTTL         = "ttl"
	ParamReliable    = "reliable"
	ParamSessionID   = "session-id"
	ParamTags        = "tags"
	ParamAlias       = "alias"
)

var recognisedParams = map[string]bool{
	ParamEndpoint: true, ParamInterface: true, ParamControl: true,
	ParamControlMode: true, ParamMTU: true, ParamTermLength: true,
	ParamInitTermID: true, ParamTermID: true, ParamTermOffset: true,
	ParamTTL: true, ParamReliable: true, ParamSessionID: true,
	ParamTags: true, ParamAlias: true,
}

// URI is a parsed channel URI.
type URI struct {
	Media  Media
	Params map[string]string
	Tags   []string
	Raw    string
}

// Parse parses raw into a channel URI. It rejects unknown parameter keys
// and malformed syntax (spec.md §7 "Configuration: invalid URI, unknown
// parameter ... Fatal at startup; reported on client command with
// correlation id at runtime").
func Parse(raw string) (URI, error) {
	const prefix = "aeron:"
	if !strings.HasPrefix(raw, prefix) {
		return URI{}, fmt.Errorf("channeluri: missing %q prefix: %q", prefix, raw)
	}
	rest := raw[len(prefix):]

	mediaStr, paramStr, hasParams := strings.Cut(rest, "?")
	media := Media(mediaStr)
	if media != MediaUDP && media != MediaIPC {
		return URI{}, fmt.Errorf("channeluri: unknown media %q in %q", mediaStr, raw)
	}

	u := URI{Media: media, Params: make(map[string]string), Raw: raw}
	if !hasParams || paramStr == "" {
		return u, nil
	}

	for _, pair := range strings.Split(paramStr, "|") {
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return URI{}, fmt.Errorf("channeluri: malformed parameter %q in %q", pair, raw)
		}
		if !recognisedParams[key] {
			return URI{}, fmt.Errorf("channeluri: unknown parameter %q in %q", key, raw)
		}
		u.Params[key] = value
	}

	if tags, ok := u.Params[ParamTags]; ok && tags != "" {
		u.Tags = strings.Split(tags, ",")
	}

	return u, nil
}

// Get returns a parameter's raw string value.
func (u URI) Get(key string) (string, bool) {
	v, ok := u.Params[key]
	return v, ok
}

// GetInt returns a parameter's value parsed as an integer.
func (u URI) GetInt(key string) (int64, bool, error) {
	v, ok := u.Params[key]
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("channeluri: parameter %q is not an integer: %q", key, v)
	}
	return n, true, nil
}

// Reliable reports whether the "reliable" parameter is set to a truthy
// value, defaulting to true when absent (UDP channels are reliable by
// default in this driver).
func (u URI) Reliable() bool {
	v, ok := u.Params[ParamReliable]
	if !ok {
		return true
	}
	return v != "false" && v != "0"
}

// Alias returns the channel's client-assigned alias, if any.
func (u URI) Alias() string {
	return u.Params[ParamAlias]
}

// AliasMatcher compiles a set of glob patterns (e.g. "video-*",
// "cam-{1,2}") for matching channel aliases/tags against subscription
// filters, so clients can subscribe to "all channels tagged cam-*" without
// the core needing to know what a "tag" means beyond a string.
type AliasMatcher struct {
	globs []glob.Glob
}

// NewAliasMatcher compiles patterns into an AliasMatcher.
func NewAliasMatcher(patterns ...string) (*AliasMatcher, error) {
	m := &AliasMatcher{globs: make([]glob.Glob, 0, len(patterns))}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("channeluri: compile alias pattern %q: %w", p, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Match reports whether alias matches any compiled pattern.
func (m *AliasMatcher) Match(alias string) bool {
	for _, g := range m.globs {
		if g.Match(alias) {
			return true
		}
	}
	return false
}

// MatchAny reports whether u's alias or any of its tags match any
// compiled pattern.
func (m *AliasMatcher) MatchAny(u URI) bool {
	if m.Match(u.Alias()) {
		return true
	}
	for _, tag := range u.Tags {
		if m.Match(tag) {
			return true
		}
	}
	return false
}
