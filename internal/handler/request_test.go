package handler

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/keygate/internal/domain"
)

func TestFlexInt_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{`5`, 5},
		{`5.9`, 5},
		{`-3.2`, -3},
		{`1e12`, math.MaxInt32},
		{`"7"`, 7},
		{`"  42abc"`, 42},
		{`"abc"`, 0},
		{`""`, 0},
		{`"-8"`, -8},
		{`"99999999999"`, math.MaxInt32},
		{`true`, 1},
		{`false`, 0},
		{`[1,2]`, 0},
		{`{"a":1}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var f flexInt
			require.NoError(t, json.Unmarshal([]byte(tt.input), &f))
			assert.Equal(t, tt.want, int(f))
		})
	}
}

func TestGenerateKeysRequest_NullCount(t *testing.T) {
	var req generateKeysRequest
	require.NoError(t, json.Unmarshal([]byte(`{"count":null,"prefix":"ABC"}`), &req))
	assert.Nil(t, req.Count)
	require.NotNil(t, req.prefix())
	assert.Equal(t, "ABC", *req.prefix())

	req = generateKeysRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"prefix":null}`), &req))
	assert.Nil(t, req.prefix())

	req = generateKeysRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"prefix":""}`), &req))
	require.NotNil(t, req.prefix())
	assert.Empty(t, *req.prefix())
}

func TestFlexString_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"PC-01"`, "PC-01"},
		{`"a\u00e9\n"`, "a\u00e9\n"},
		{`""`, ""},
		{`123`, "123"},
		{`-4.5`, "-4.5"},
		{`1e3`, "1e3"},
		{`true`, "1"},
		{`false`, ""},
		{`null`, ""},
		{`[1,2]`, ""},
		{`{"a":"b"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var f flexString
			require.NoError(t, json.Unmarshal([]byte(tt.input), &f))
			assert.Equal(t, tt.want, string(f))
		})
	}
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want validateKeyRequest
	}{
		{name: "valid", body: `{"key":"K","computer_name":"PC"}`, want: validateKeyRequest{Key: "K", ComputerName: "PC"}},
		{name: "empty", body: ``, want: validateKeyRequest{}},
		{name: "malformed", body: `{"key":`, want: validateKeyRequest{}},
		{name: "numeric key", body: `{"key":5}`, want: validateKeyRequest{Key: "5"}},
		{name: "numeric field keeps the rest", body: `{"key":"K","computer_name":123}`, want: validateKeyRequest{Key: "K", ComputerName: "123"}},
		{name: "mixed types", body: `{"key":"K","user_name":true,"serial_number":["x"]}`, want: validateKeyRequest{Key: "K", UserName: "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var got validateKeyRequest
			decodeBody(r, &got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClientInfo(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.RemoteAddr = "10.0.0.7:51234"
	r.Header.Set("User-Agent", "launcher/2.1")
	r.Header.Set("X-Forwarded-For", "1.2.3.4")

	assert.Equal(t, domain.ClientInfo{IPAddress: "10.0.0.7", UserAgent: "launcher/2.1"}, clientInfo(r))

	r = httptest.NewRequest(http.MethodPost, "/", nil)
	r.RemoteAddr = ""
	r.Header.Del("User-Agent")

	assert.Equal(t, domain.ClientInfo{IPAddress: domain.UnknownClientValue, UserAgent: domain.UnknownClientValue}, clientInfo(r))
}

func TestAdminAuthorized(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		want   bool
	}{
		{name: "disabled", token: "", header: "", want: true},
		{name: "missing header", token: "t0k", header: "", want: false},
		{name: "match", token: "t0k", header: "Bearer t0k", want: true},
		{name: "lowercase scheme", token: "t0k", header: "bearer t0k", want: true},
		{name: "wrong token", token: "t0k", header: "Bearer nope", want: false},
		{name: "basic scheme", token: "t0k", header: "Basic t0k", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, adminAuthorized(r, tt.token))
		})
	}
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, 0, nil)

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}
