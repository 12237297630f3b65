package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voyagen/epgsync/internal/models"
)

const samplePlaylist = `#EXTM3U
#EXTINF:-1 tvg-id="dazn1.es" tvg-name="DAZN 1" tvg-logo="http://logo/dazn1.png" group-title="Sports",DAZN 1 HD
acestream://0123456789abcdef0123456789abcdef01234567
#EXTINF:-1 group-title="Movies, Classic",Cine, Clasico
http://127.0.0.1:6878/ace/getstream?id=89ABCDEF0123456789ABCDEF0123456789ABCDEF
#EXTVLCOPT:http-user-agent=VLC
#EXTINF:-1 tvg-name="News 24",
http://example.com/news.m3u8
#EXTINF:-1,Duplicate
acestream://0123456789abcdef0123456789abcdef01234567
http://orphan.example.com/no-extinf
`

func TestParseM3U(t *testing.T) {
	channels, err := ParseM3U(strings.NewReader(samplePlaylist))
	if err != nil {
		t.Fatalf("ParseM3U returned error: %v", err)
	}
	if len(channels) != 3 {
		t.Fatalf("expected 3 channels, got %d: %+v", len(channels), channels)
	}

	dazn := channels[0]
	if dazn.ID != "0123456789abcdef0123456789abcdef01234567" || dazn.Name != "DAZN 1 HD" {
		t.Fatalf("unexpected first channel: %+v", dazn)
	}
	if models.StrVal(dazn.TvgID) != "dazn1.es" || models.StrVal(dazn.Logo) != "http://logo/dazn1.png" {
		t.Fatalf("tvg attributes not parsed: %+v", dazn)
	}
	if models.StrVal(dazn.Group) != "Sports" {
		t.Fatalf("group not parsed: %+v", dazn)
	}

	cine := channels[1]
	if cine.ID != "89abcdef0123456789abcdef0123456789abcdef" {
		t.Fatalf("infohash not extracted from query: %s", cine.ID)
	}
	if cine.Name != "Cine, Clasico" || models.StrVal(cine.Group) != "Movies, Classic" {
		t.Fatalf("comma handling broken: %+v", cine)
	}
	if cine.HasEPG() {
		t.Fatalf("channel without tvg attributes should have no EPG data: %+v", cine)
	}

	news := channels[2]
	if news.Name != "News 24" || len(news.ID) != 40 {
		t.Fatalf("expected name from tvg-name and hashed id, got %+v", news)
	}
}

func TestChannelIDIsStable(t *testing.T) {
	a := ChannelID("http://example.com/a.m3u8")
	if a != ChannelID(" http://example.com/a.m3u8 ") {
		t.Fatal("id should ignore surrounding whitespace")
	}
	if a == ChannelID("http://example.com/b.m3u8") {
		t.Fatal("different urls must not share an id")
	}
}

func TestWriteM3URoundTrip(t *testing.T) {
	in, err := ParseM3U(strings.NewReader(samplePlaylist))
	if err != nil {
		t.Fatal(err)
	}
	var buf strings.Builder
	if err := WriteM3U(&buf, in); err != nil {
		t.Fatalf("WriteM3U returned error: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "#EXTM3U\n") {
		t.Fatalf("missing header: %q", buf.String())
	}
	out, err := ParseM3U(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("round trip lost channels: %d vs %d", len(out), len(in))
	}
	for i := range in {
		if out[i].ID != in[i].ID || out[i].Name != in[i].Name || !out[i].EPG().Equal(in[i].EPG()) {
			t.Fatalf("channel %d changed: %+v vs %+v", i, out[i], in[i])
		}
	}
}

func TestFetchM3URejectsOversizedPlaylist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(samplePlaylist))
	}))
	defer srv.Close()

	saved := maxBody
	t.Cleanup(func() { maxBody = saved })

	maxBody = int64(len(samplePlaylist))
	if channels, err := FetchM3U(context.Background(), srv.URL, "", 5*time.Second); err != nil || len(channels) != 3 {
		t.Fatalf("playlist at the limit: %d channels, err %v", len(channels), err)
	}

	maxBody = int64(len(samplePlaylist)) / 2
	channels, err := FetchM3U(context.Background(), srv.URL, "", 5*time.Second)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v with %d channels", err, len(channels))
	}
}
