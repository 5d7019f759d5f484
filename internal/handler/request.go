package handler

import (
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/prn-tf/keygate/internal/domain"
)

// validateKeyRequest is the body of validate_key.
type validateKeyRequest struct {
	Key          flexString `json:"key"`
	ComputerName flexString `json:"computer_name"`
	UserName     flexString `json:"user_name"`
	SerialNumber flexString `json:"serial_number"`
}

// createAccountRequest is the body of create_account.
type createAccountRequest struct {
	Username flexString `json:"username"`
	Password flexString `json:"password"`
	HWID     flexString `json:"hwid"`
	Key      flexString `json:"key"`
}

// loginRequest is the body of login.
type loginRequest struct {
	Username     flexString `json:"username"`
	Password     flexString `json:"password"`
	ComputerName flexString `json:"computer_name"`
	UserName     flexString `json:"user_name"`
	SerialNumber flexString `json:"serial_number"`
}

// generateKeysRequest is the body of generate_keys.
// Absent or null fields stay nil so defaults can be applied.
type generateKeysRequest struct {
	Count  *flexInt    `json:"count"`
	Prefix *flexString `json:"prefix"`
}

// prefix returns the requested prefix, or nil when none was sent.
func (r generateKeysRequest) prefix() *string {
	if r.Prefix == nil {
		return nil
	}
	p := string(*r.Prefix)
	return &p
}

// machine returns the identity components of a validate_key request.
func (r validateKeyRequest) machine() domain.MachineIdentity {
	return domain.MachineIdentity{
		ComputerName: string(r.ComputerName),
		UserName:     string(r.UserName),
		SerialNumber: string(r.SerialNumber),
	}
}

// machine returns the identity components of a login request.
func (r loginRequest) machine() domain.MachineIdentity {
	return domain.MachineIdentity{
		ComputerName: string(r.ComputerName),
		UserName:     string(r.UserName),
		SerialNumber: string(r.SerialNumber),
	}
}

// decodeBody reads a JSON object into dst. An unreadable or malformed body
// leaves dst at its zero value, so every field takes its default.
// Field types are lenient (see flexString and flexInt), so a well-formed
// object always decodes.
func decodeBody[T any](r *http.Request, dst *T) {
	data, err := io.ReadAll(r.Body)
	if err != nil || len(data) == 0 {
		return
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return
	}
	*dst = v
}

// flexString accepts any JSON value for a text field. Numbers keep their
// literal text, true becomes "1", and false, null, arrays and objects
// become "".
type flexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*f = flexString(str)
		return nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		*f = ""
		return nil
	}

	switch x := v.(type) {
	case float64:
		*f = flexString(strings.TrimSpace(string(data)))
	case bool:
		if x {
			*f = "1"
		} else {
			*f = ""
		}
	default:
		*f = ""
	}
	return nil
}

// flexInt accepts a JSON number, numeric string or boolean and converts it
// to an integer. Anything unparseable becomes 0 instead of failing the body.
type flexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexInt) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		*f = 0
		return nil
	}

	switch x := v.(type) {
	case float64:
		*f = flexInt(clampFloat(x))
	case string:
		*f = flexInt(leadingInt(x))
	case bool:
		if x {
			*f = 1
		} else {
			*f = 0
		}
	default:
		*f = 0
	}
	return nil
}

// clampFloat truncates toward zero and clamps to the int range.
func clampFloat(x float64) int {
	switch {
	case math.IsNaN(x):
		return 0
	case x >= math.MaxInt32:
		return math.MaxInt32
	case x <= math.MinInt32:
		return math.MinInt32
	default:
		return int(x)
	}
}

// leadingInt parses the longest integer prefix of s after leading
// whitespace: "12abc" is 12, "abc" is 0.
func leadingInt(s string) int {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)

	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}

	n, err := strconv.ParseInt(s[:end], 10, 32)
	if err != nil {
		if strings.HasPrefix(s, "-") {
			return math.MinInt32
		}
		return math.MaxInt32
	}
	return int(n)
}

// clientInfo extracts the audit fields of a request. The address is the
// peer of the TCP connection; forwarded headers are not trusted.
func clientInfo(r *http.Request) domain.ClientInfo {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	return domain.ClientInfo{
		IPAddress: host,
		UserAgent: r.UserAgent(),
	}.Normalize()
}
