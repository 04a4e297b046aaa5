package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/insurebot/internal/model"
)

// prediction is document.inference.prediction of a Mindee response. Fields are
// either {"value": ...} objects or lists of them.
type prediction map[string]json.RawMessage

type fieldValue struct {
	Value json.RawMessage `json:"value"`
}

type predictResponse struct {
	Document *struct {
		Inference struct {
			Prediction prediction `json:"prediction"`
		} `json:"inference"`
	} `json:"document"`
	Job *job `json:"job"`
}

type job struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	PollingURL string `json:"polling_url"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r predictResponse) prediction() prediction {
	if r.Document == nil {
		return nil
	}
	return r.Document.Inference.Prediction
}

// str returns the first non-empty value among names.
func (p prediction) str(names ...string) string {
	for _, name := range names {
		raw, ok := p[name]
		if !ok {
			continue
		}
		if s := rawField(raw); s != "" {
			return s
		}
	}
	return ""
}

// require is str that fails when every name is empty.
func (p prediction) require(names ...string) (string, error) {
	if s := p.str(names...); s != "" {
		return s, nil
	}
	return "", fmt.Errorf("missing field %s", strings.Join(names, "|"))
}

// year reads a manufacture year and rejects values outside
// [model.MinYear, now.Year()].
func (p prediction) year(now time.Time, names ...string) (int, error) {
	s, err := p.require(names...)
	if err != nil {
		return 0, err
	}
	y, err := strconv.Atoi(s)
	if err != nil {
		y = 0
		// some models return "2019.0" or a full date
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil && f == math.Trunc(f) {
			y = int(f)
		} else if len(s) >= 4 && (len(s) == 4 || s[4] == '-') {
			y, _ = strconv.Atoi(s[:4])
		}
	}
	if !model.ValidYear(y, now) {
		return 0, fmt.Errorf("field %s: %q is not a plausible year", names[0], s)
	}
	return y, nil
}

func rawField(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '[' {
		var list []fieldValue
		if err := json.Unmarshal(raw, &list); err != nil {
			return ""
		}
		for _, f := range list {
			if s := scalar(f.Value); s != "" {
				return s
			}
		}
		return ""
	}
	var f fieldValue
	if err := json.Unmarshal(raw, &f); err != nil {
		return ""
	}
	return scalar(f.Value)
}

func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
