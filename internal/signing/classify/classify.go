// Package classify maps a raw sign-in response onto the closed outcome set.
package classify

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vietddude/tiebasign/internal/core/domain"
)

// Known response codes.
const (
	CodeOK               = 0
	CodeAlreadySigned    = 1101
	CodeNeedsCaptcha     = 2150040
	CodeNotMember        = 1011
	CodeTooFrequent      = 1102
	CodeInvalidDirectory = 1010
)

var permanentReasons = map[int]string{
	CodeNeedsCaptcha:     "requires verification",
	CodeNotMember:        "not a member or level too low",
	CodeTooFrequent:      "signing too frequently",
	CodeInvalidDirectory: "invalid forum",
}

type signResponse struct {
	No    *int   `json:"no"`
	Error string `json:"error"`
	Data  *struct {
		Errno  *int   `json:"errno"`
		Errmsg string `json:"errmsg"`
		UInfo  *struct {
			UserSignRank flexInt `json:"user_sign_rank"`
			ContSignNum  flexInt `json:"cont_sign_num"`
		} `json:"uinfo"`
	} `json:"data"`
}

// Classify maps a raw response to an Outcome. It never fails: anything it
// cannot recognise becomes an Error outcome carrying the raw payload.
func Classify(raw []byte) domain.Outcome {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return domain.Error(domain.ReasonEmptyResponse, -1, "")
	}

	var resp signResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return domain.Error(fmt.Sprintf("unparseable response: %v", err), -1, string(trimmed))
	}

	if resp.No == nil {
		return domain.Error(errorMessage(resp.Error, -1), -1, string(trimmed))
	}
	code := *resp.No

	switch {
	case code == CodeAlreadySigned:
		return domain.AlreadyDone()
	case code == CodeOK && resp.Data != nil && resp.Data.Errno != nil &&
		*resp.Data.Errno == 0 && resp.Data.Errmsg == "success":
		var rank, streak int
		if u := resp.Data.UInfo; u != nil {
			rank, streak = int(u.UserSignRank), int(u.ContSignNum)
		}
		return domain.Success(rank, streak)
	}

	if reason, ok := permanentReasons[code]; ok {
		return domain.PermanentFailure(code, reason)
	}
	return domain.Error(errorMessage(resp.Error, code), code, string(trimmed))
}

func errorMessage(msg string, code int) string {
	if msg != "" {
		return msg
	}
	if code < 0 {
		return "sign-in failed, unknown error code"
	}
	return fmt.Sprintf("sign-in failed, error code %d", code)
}

// flexInt accepts both JSON numbers and numeric strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	v, err := json.Number(b).Int64()
	if err != nil {
		// Counters are informational only.
		return nil
	}
	*f = flexInt(v)
	return nil
}
