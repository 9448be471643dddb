package polza

import (
	"bytes"
	"encoding/json"
	"strings"

	"genbot/internal/domain"
)

// pollResult is one decoded status response. URL is set once the asset is
// ready; Failed marks a terminal provider error.
type pollResult struct {
	URL    string
	Status string
	Failed bool
	Detail string
}

type statusResponse struct {
	Status string          `json:"status"`
	URL    string          `json:"url"`
	Images assetList       `json:"images"`
	Videos assetList       `json:"videos"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// assetList accepts both ["https://..."] and [{"url": "https://..."}].
type assetList []string

func (a *assetList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, strings.TrimSpace(s))
			continue
		}
		var obj struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(item, &obj); err == nil {
			out = append(out, strings.TrimSpace(obj.URL))
		}
	}
	*a = out
	return nil
}

func (a assetList) first() string {
	if len(a) == 0 {
		return ""
	}
	return a[0]
}

// decodeResult extracts the asset URL in provider priority order: top-level
// url, then the first images (or videos) entry, then result.url.
func decodeResult(kind domain.JobKind, body []byte, isFailure func(string) bool) (pollResult, error) {
	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return pollResult{}, err
	}
	res := pollResult{Status: strings.ToLower(strings.TrimSpace(resp.Status))}

	candidates := []string{resp.URL, resp.Images.first()}
	if kind == domain.JobKindVideo {
		candidates = append(candidates, resp.Videos.first())
	}
	candidates = append(candidates, nestedURL(resp.Result))
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			res.URL = c
			return res, nil
		}
	}

	if isFailure != nil && isFailure(res.Status) {
		res.Failed = true
		res.Detail = errorDetail(resp.Error)
		if res.Detail == "" {
			res.Detail = strings.TrimSpace(string(body))
		}
	}
	return res, nil
}

func nestedURL(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return ""
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	return obj.URL
}

func errorDetail(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		if obj.Code != "" {
			return obj.Message + " (" + obj.Code + ")"
		}
		return obj.Message
	}
	return string(raw)
}
