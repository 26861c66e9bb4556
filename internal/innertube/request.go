package innertube

import (
	"encoding/json"
	"strings"
)

type PlayerRequest struct {
	Context         Context         `json:"context"`
	VideoID         string          `json:"videoId"`
	ContentCheckOk  bool            `json:"contentCheckOk,omitempty"`
	RacyCheckOk     bool            `json:"racyCheckOk,omitempty"`
	PlaybackContext PlaybackContext `json:"playbackContext,omitempty"`
}

type Context struct {
	Client     ClientInfo     `json:"client"`
	ThirdParty *ThirdParty    `json:"thirdParty,omitempty"`
	Request    RequestContext `json:"request,omitempty"`
}

type ClientInfo struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	DeviceMake        string `json:"deviceMake,omitempty"`
	DeviceModel       string `json:"deviceModel,omitempty"`
	UserAgent         string `json:"userAgent,omitempty"`
	OsName            string `json:"osName,omitempty"`
	OsVersion         string `json:"osVersion,omitempty"`
	AcceptLanguage    string `json:"hl"`
	TimeZone          string `json:"timeZone"`
	UtcOffsetMinutes  int    `json:"utcOffsetMinutes"`
	AndroidSdkVersion int    `json:"androidSdkVersion,omitempty"`
}

type ThirdParty struct {
	EmbedUrl string `json:"embedUrl"`
}

type RequestContext struct {
	UseSsl bool `json:"useSsl"`
}

type PlaybackContext struct {
	ContentPlaybackContext ContentPlaybackContext `json:"contentPlaybackContext"`
}

type ContentPlaybackContext struct {
	Vis                int    `json:"vis"`
	Splay              bool   `json:"splay"`
	Html5Preference    string `json:"html5Preference"`
	SignatureTimestamp int    `json:"signatureTimestamp,omitempty"`
}

// NewPlayerRequest builds the request body for a streaming-metadata fetch
// against the given client profile.
func NewPlayerRequest(profile ClientProfile, trackID string) *PlayerRequest {
	clientInfo := ClientInfo{
		ClientName:       profile.Name,
		ClientVersion:    profile.Version,
		UserAgent:        profile.UserAgent,
		AcceptLanguage:   "en",
		TimeZone:         "UTC",
		UtcOffsetMinutes: 0,
	}
	applyClientContextDefaults(&clientInfo, profile)

	req := &PlayerRequest{
		VideoID:        trackID,
		RacyCheckOk:    true,
		ContentCheckOk: true,
		Context: Context{
			Client: clientInfo,
			Request: RequestContext{
				UseSsl: true,
			},
		},
		PlaybackContext: PlaybackContext{
			ContentPlaybackContext: ContentPlaybackContext{
				Html5Preference: "HTML5_PREF_WANTS",
			},
		},
	}

	if profile.Screen == "EMBED" {
		req.Context.ThirdParty = &ThirdParty{
			EmbedUrl: "https://" + profile.Host + "/watch?v=" + trackID,
		}
	}

	return req
}

// MarshalRequest serializes the request body for transport.
func MarshalRequest(req *PlayerRequest) ([]byte, error) {
	return json.Marshal(req)
}

func applyClientContextDefaults(client *ClientInfo, profile ClientProfile) {
	switch strings.ToUpper(strings.TrimSpace(profile.Name)) {
	case "ANDROID":
		client.OsName = "Android"
		client.OsVersion = "11"
		client.DeviceMake = "Google"
		client.DeviceModel = "Pixel 5"
		client.AndroidSdkVersion = 30
	case "IOS":
		client.OsName = "iOS"
		client.OsVersion = "18.3.2.22D82"
		client.DeviceMake = "Apple"
		client.DeviceModel = "iPhone16,2"
	case "MWEB":
		client.OsName = "Android"
		client.OsVersion = "11"
	}
}
