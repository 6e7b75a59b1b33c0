package sink

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/banshee-data/biosignal/internal/multicast"
)

var (
	// ErrUnsupportedStreamer is returned for a streamer scheme this build
	// cannot serve.
	ErrUnsupportedStreamer = errors.New("unsupported streamer")
	// ErrInvalidStreamer is returned for a malformed streamer spec.
	ErrInvalidStreamer = errors.New("invalid streamer spec")
	// ErrStreamerUnavailable is returned when a valid streamer cannot be
	// opened.
	ErrStreamerUnavailable = errors.New("streamer unavailable")
)

// SchemeStreamingBoard re-streams samples to a multicast group that relay
// sessions can join.
const SchemeStreamingBoard = "streaming_board"

// StreamerSpec is a parsed streamer description. The zero value means no
// streamer.
type StreamerSpec struct {
	Scheme string
	Group  string
	Port   int
}

// Enabled reports whether the spec names a streamer.
func (s StreamerSpec) Enabled() bool {
	return s.Scheme != ""
}

func (s StreamerSpec) String() string {
	if !s.Enabled() {
		return ""
	}
	return s.Scheme + "://" + net.JoinHostPort(s.Group, strconv.Itoa(s.Port))
}

// ParseStreamerSpec parses "scheme://target". An empty string disables
// streaming. Only streaming_board://<group>:<port> is served.
func ParseStreamerSpec(spec string) (StreamerSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return StreamerSpec{}, nil
	}

	scheme, target, ok := strings.Cut(spec, "://")
	if !ok || scheme == "" || target == "" {
		return StreamerSpec{}, fmt.Errorf("%w: %q", ErrInvalidStreamer, spec)
	}

	if scheme != SchemeStreamingBoard {
		return StreamerSpec{}, fmt.Errorf("%w: %s", ErrUnsupportedStreamer, scheme)
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return StreamerSpec{}, fmt.Errorf("%w: %v", ErrInvalidStreamer, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return StreamerSpec{}, fmt.Errorf("%w: bad port %q", ErrInvalidStreamer, portStr)
	}
	if _, err := multicast.ParseGroup(host); err != nil {
		return StreamerSpec{}, fmt.Errorf("%w: %v", ErrInvalidStreamer, err)
	}
	return StreamerSpec{Scheme: scheme, Group: host, Port: port}, nil
}
