package fetcher

import (
	"bufio"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/voyagen/epgsync/internal/models"
)

var (
	reTvgName   = regexp.MustCompile(`tvg-name="([^"]*)"`)
	reTvgID     = regexp.MustCompile(`tvg-id="([^"]*)"`)
	reTvgLogo   = regexp.MustCompile(`tvg-logo="([^"]*)"`)
	reGroup     = regexp.MustCompile(`group-title="([^"]*)"`)
	reCommaName = regexp.MustCompile(`,([^\n\r]*)$`)
	reInfohash  = regexp.MustCompile(`(?i)(?:acestream://|[?&](?:id|infohash|content_id)=)([0-9a-f]{40})`)
)

// ParseM3U reads an M3U playlist. Every entry becomes a channel carrying the
// playlist's tvg attributes; entries repeating an earlier id are dropped.
func ParseM3U(r io.Reader) ([]models.Channel, error) {
	var channels []models.Channel
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(r)
	// some EXTINF lines are very long
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var extinf string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(strings.ToUpper(line), "#EXTINF"):
			extinf = line
		case strings.HasPrefix(line, "#"):
			// #EXTM3U, #EXTVLCOPT and friends
		default:
			if extinf == "" {
				continue
			}
			ch := channelFromEXTINF(extinf, line)
			extinf = ""
			if seen[ch.ID] {
				continue
			}
			seen[ch.ID] = true
			channels = append(channels, ch)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return channels, nil
}

func channelFromEXTINF(extinf, url string) models.Channel {
	ch := models.Channel{
		ID:    ChannelID(url),
		URL:   url,
		Group: matchFirstPtr(reGroup, extinf),
	}
	ch.SetEPG(models.EPGFields{
		TvgID:   matchFirstPtr(reTvgID, extinf),
		TvgName: matchFirstPtr(reTvgName, extinf),
		Logo:    matchFirstPtr(reTvgLogo, extinf),
	})
	switch name := commaName(extinf); {
	case name != "":
		ch.Name = name
	case ch.TvgName != nil:
		ch.Name = *ch.TvgName
	case ch.TvgID != nil:
		ch.Name = *ch.TvgID
	default:
		ch.Name = ch.ID
	}
	return ch
}

// commaName returns the display name following the attribute list.
func commaName(extinf string) string {
	attrs := extinf
	if i := strings.LastIndex(extinf, `"`); i >= 0 {
		attrs = extinf[i:]
	}
	return matchFirst(reCommaName, attrs)
}

// ChannelID derives the stable channel id: the acestream infohash when the
// URL carries one, otherwise a SHA-1 of the URL.
func ChannelID(url string) string {
	if m := reInfohash.FindStringSubmatch(url); len(m) == 2 {
		return strings.ToLower(m[1])
	}
	sum := sha1.Sum([]byte(strings.TrimSpace(url)))
	return hex.EncodeToString(sum[:])
}

func matchFirst(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func matchFirstPtr(re *regexp.Regexp, s string) *string {
	return models.StrPtr(matchFirst(re, s))
}

// WriteM3U renders channels as an extended M3U playlist.
func WriteM3U(w io.Writer, channels []models.Channel) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "#EXTM3U")
	for _, ch := range channels {
		var attrs []string
		if ch.TvgID != nil {
			attrs = append(attrs, attr("tvg-id", *ch.TvgID))
		}
		if ch.TvgName != nil {
			attrs = append(attrs, attr("tvg-name", *ch.TvgName))
		}
		if ch.Logo != nil {
			attrs = append(attrs, attr("tvg-logo", *ch.Logo))
		}
		if ch.Group != nil {
			attrs = append(attrs, attr("group-title", *ch.Group))
		}
		prefix := "#EXTINF:-1"
		if len(attrs) > 0 {
			prefix += " " + strings.Join(attrs, " ")
		}
		fmt.Fprintf(bw, "%s,%s\n", prefix, oneLine(ch.Name))
		url := ch.URL
		if url == "" {
			url = "acestream://" + ch.ID
		}
		fmt.Fprintln(bw, url)
	}
	return bw.Flush()
}

func attr(key, value string) string {
	return key + `="` + strings.ReplaceAll(oneLine(value), `"`, "'") + `"`
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
