// Package icy polls ICY/Shoutcast streams for in-band metadata.
//
// Unlike a playback client, the poller opens the stream, reads exactly one
// metadata block, and closes the connection. It never holds a stream open
// between polls, so a monitor costs one short HTTP request per cycle.
package icy

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/zachfi/zkit/pkg/util"

	"github.com/zachfi/castwatch/pkg/nowplaying"
)

// ErrNoMetadata means the server did not advertise an icy-metaint header,
// so the stream carries no in-band metadata.
var ErrNoMetadata = fmt.Errorf("stream does not advertise icy metadata: %w", nowplaying.ErrUnsupported)

// streamTitleRE matches the single well-known key in an ICY metadata
// block, e.g. StreamTitle='Boards of Canada - Roygbiv';
var streamTitleRE = regexp.MustCompile(`StreamTitle='([^']+)'`)

const (
	defaultUserAgent   = "castwatch/1.0"
	defaultPollTimeout = 10 * time.Second

	// maxMetaInt bounds how much audio we are willing to discard to
	// reach the first metadata block. Typical servers use 8k-16k.
	maxMetaInt = 1 << 20
)

type Config struct {
	UserAgent string        `yaml:"user_agent,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.UserAgent, util.PrefixConfig(prefix, "user-agent"), defaultUserAgent,
		"User-Agent header sent on metadata polls.")
	f.DurationVar(&cfg.Timeout, util.PrefixConfig(prefix, "timeout"), defaultPollTimeout,
		"Timeout for one metadata poll request.")
}

// Poller performs one-shot metadata polls against ICY streams. It
// satisfies the monitor pool's Poller contract.
type Poller struct {
	cfg    Config
	client *http.Client
}

func NewPoller(cfg Config) *Poller {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultPollTimeout
	}

	dialer := &net.Dialer{Timeout: 5 * time.Second}

	return &Poller{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Dial:                  dialer.Dial,
				ResponseHeaderTimeout: cfg.Timeout,
				// A poll is one request per stream per cycle; keeping
				// connections alive would hold streams open for nothing.
				DisableKeepAlives: true,
			},
		},
	}
}

// Prepare implements monitor.Poller. ICY polls the stream URL directly,
// no identifier extraction is needed.
func (p *Poller) Prepare(url string) (string, error) {
	return url, nil
}

// Poll opens the stream with metadata interleaving requested, reads up to
// the first metadata block, and returns the track it carries. A nil track
// with nil error means the server had no update this cycle.
func (p *Poller) Poll(ctx context.Context, url string) (*nowplaying.Track, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Icy-MetaData", "1")
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	rawMetaInt := resp.Header.Get("icy-metaint")
	if rawMetaInt == "" {
		return nil, ErrNoMetadata
	}

	metaInt, err := strconv.Atoi(rawMetaInt)
	if err != nil {
		return nil, fmt.Errorf("cannot parse icy-metaint %q: %w", rawMetaInt, err)
	}
	if metaInt < 0 || metaInt > maxMetaInt {
		return nil, fmt.Errorf("unreasonable icy-metaint %d", metaInt)
	}

	// Discard audio bytes up to the metadata boundary.
	if _, err := io.CopyN(io.Discard, resp.Body, int64(metaInt)); err != nil {
		return nil, fmt.Errorf("read audio prefix: %w", err)
	}

	var lengthByte [1]byte
	if _, err := io.ReadFull(resp.Body, lengthByte[:]); err != nil {
		return nil, fmt.Errorf("read metadata length: %w", err)
	}

	blockLen := int(lengthByte[0]) * 16
	if blockLen == 0 {
		// No update this cycle.
		return nil, nil
	}

	block := make([]byte, blockLen)
	if _, err := io.ReadFull(resp.Body, block); err != nil {
		return nil, fmt.Errorf("read metadata block: %w", err)
	}

	return ParseBlock(block), nil
}

// ParseBlock decodes a raw metadata block and extracts the stream title.
// Undecodable bytes are dropped and trailing NUL padding stripped. Returns
// nil when the block carries no StreamTitle.
func ParseBlock(block []byte) *nowplaying.Track {
	s := strings.ToValidUTF8(string(block), "")
	s = strings.TrimRight(s, "\x00")

	m := streamTitleRE.FindStringSubmatch(s)
	if m == nil {
		return nil
	}

	t := nowplaying.SplitTitle(m[1])
	return &t
}
