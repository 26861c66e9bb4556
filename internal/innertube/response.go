package innertube

// PlayerResponse is the top-level streaming metadata response from the
// upstream /player endpoint, trimmed to the playback surface.
type PlayerResponse struct {
	PlayabilityStatus PlayabilityStatus `json:"playabilityStatus"`
	StreamingData     StreamingData     `json:"streamingData"`
	VideoDetails      VideoDetails      `json:"videoDetails"`
}

type PlayabilityStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (p *PlayabilityStatus) IsOK() bool {
	return p.Status == "OK"
}

type StreamingData struct {
	ExpiresInSeconds string   `json:"expiresInSeconds"`
	Formats          []Format `json:"formats"`
	AdaptiveFormats  []Format `json:"adaptiveFormats"`
	HlsManifestURL   string   `json:"hlsManifestUrl"`
}

// HasStreams reports whether the metadata carries any delivery path at all.
func (s *StreamingData) HasStreams() bool {
	return len(s.Formats) > 0 || len(s.AdaptiveFormats) > 0 || s.HlsManifestURL != ""
}

type Format struct {
	Itag             int    `json:"itag"`
	URL              string `json:"url"`
	MimeType         string `json:"mimeType"`
	Bitrate          int    `json:"bitrate"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	LastModified     string `json:"lastModified"`
	ContentLength    string `json:"contentLength"`
	Quality          string `json:"quality"`
	QualityLabel     string `json:"qualityLabel"`
	AverageBitrate   int    `json:"averageBitrate"`
	AudioQuality     string `json:"audioQuality"`
	ApproxDurationMs string `json:"approxDurationMs"`
	AudioSampleRate  string `json:"audioSampleRate"`
	AudioChannels    int    `json:"audioChannels"`
	SignatureCipher  string `json:"signatureCipher"`
	Cipher           string `json:"cipher"` // Legacy
}

type VideoDetails struct {
	VideoID       string `json:"videoId"`
	Title         string `json:"title"`
	LengthSeconds string `json:"lengthSeconds"`
	Author        string `json:"author"`
	IsLiveContent bool   `json:"isLiveContent"`
}
