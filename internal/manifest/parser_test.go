package manifest

import "testing"

func TestBestAudioRendition_LastDeclaredMediaWins(t *testing.T) {
	raw := `#EXTM3U
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",NAME="low",URI="a/itag/139/audio.m3u8"
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",NAME="high",URI="a/itag/140/audio.m3u8"
#EXT-X-STREAM-INF:BANDWIDTH=800000,CODECS="avc1.4d401f,mp4a.40.2"
v/itag/22/prog.m3u8
`
	got := BestAudioRendition(raw, "https://cdn.example.test/master.m3u8")
	want := "https://cdn.example.test/a/itag/140/audio.m3u8"
	if got != want {
		t.Fatalf("BestAudioRendition() = %q, want %q", got, want)
	}
}

func TestBestAudioRendition_AbsoluteURIPassthrough(t *testing.T) {
	raw := `#EXTM3U
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",URI="https://other.example.test/a.m3u8"
`
	got := BestAudioRendition(raw, "https://cdn.example.test/master.m3u8")
	if got != "https://other.example.test/a.m3u8" {
		t.Fatalf("BestAudioRendition() = %q", got)
	}
}

func TestBestAudioRendition_HighestBandwidthVariant(t *testing.T) {
	raw := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=96000,CODECS="mp4a.40.2"
a/96.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=256000,CODECS="mp4a.40.2"
a/256.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=128000,CODECS="mp4a.40.2"
a/128.m3u8
`
	got := BestAudioRendition(raw, "https://cdn.example.test/master.m3u8")
	want := "https://cdn.example.test/a/256.m3u8"
	if got != want {
		t.Fatalf("BestAudioRendition() = %q, want %q", got, want)
	}
}

func TestBestAudioRendition_SkipsVideoVariants(t *testing.T) {
	raw := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=2500000,CODECS="avc1.64001f,mp4a.40.2"
v/1080.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=128000,CODECS="mp4a.40.2"
a/128.m3u8
`
	got := BestAudioRendition(raw, "https://cdn.example.test/master.m3u8")
	if got != "https://cdn.example.test/a/128.m3u8" {
		t.Fatalf("BestAudioRendition() = %q", got)
	}
}

func TestBestAudioRendition_NoCandidates(t *testing.T) {
	raw := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=2500000,CODECS="avc1.64001f,mp4a.40.2"
v/1080.m3u8
`
	if got := BestAudioRendition(raw, "https://cdn.example.test/master.m3u8"); got != "" {
		t.Fatalf("BestAudioRendition() = %q, want empty", got)
	}
}

func TestBestAudioRendition_MalformedInputDegrades(t *testing.T) {
	cases := []string{
		"",
		"not a playlist at all",
		"#EXT-X-STREAM-INF:BANDWIDTH=abc,CODECS=\"mp4a.40.2\"\na.m3u8",
		"#EXT-X-MEDIA:TYPE=AUDIO",
		"#EXT-X-STREAM-INF:CODECS=\"mp4a.40.2\"",
	}
	for _, raw := range cases {
		if got := BestAudioRendition(raw, "https://cdn.example.test/m.m3u8"); got != "" {
			t.Fatalf("BestAudioRendition(%q) = %q, want empty", raw, got)
		}
	}
}

func TestBestAudioRendition_DirectoryConcatFallback(t *testing.T) {
	raw := "#EXT-X-MEDIA:TYPE=AUDIO,URI=\"aud.m3u8\"\n"
	got := BestAudioRendition(raw, "://bad base/dir/master.m3u8")
	if got != "://bad base/dir/aud.m3u8" {
		t.Fatalf("BestAudioRendition() = %q", got)
	}
}
