package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractConfirmationLink(t *testing.T) {
	t.Run("unwraps ccUrl button link", func(t *testing.T) {
		detail := MessageDetail{HTML: []string{
			`<a href="https://chayns.net/button?tappAction=cc&ccUrl=https%3A%2F%2Flogin.chayns.net%2Fconfirm%3Fcode%3Dxyz">Confirm</a>`,
		}}
		assert.Equal(t, "https://login.chayns.net/confirm?code=xyz", ExtractConfirmationLink(detail))
	})

	t.Run("accepts chayns.cc short link", func(t *testing.T) {
		detail := MessageDetail{HTML: []string{
			`<img src="https://cdn.example.com/logo.png"><a href='https://chayns.cc/login1/abcdef'>Open</a>`,
		}}
		assert.Equal(t, "https://chayns.cc/login1/abcdef", ExtractConfirmationLink(detail))
	})

	t.Run("accepts code-carrying login link", func(t *testing.T) {
		detail := MessageDetail{HTML: []string{
			`<a href="https://login.chayns.net/verify?code=123456">verify</a>`,
		}}
		assert.Equal(t, "https://login.chayns.net/verify?code=123456", ExtractConfirmationLink(detail))
	})

	t.Run("falls back to plain text body", func(t *testing.T) {
		detail := MessageDetail{Text: "Click https://chayns.cc/login1/xyz to confirm your address."}
		assert.Equal(t, "https://chayns.cc/login1/xyz", ExtractConfirmationLink(detail))
	})

	t.Run("skips static assets when nothing matches the whitelist", func(t *testing.T) {
		detail := MessageDetail{HTML: []string{
			`<img src="x"><a href="https://cdn.example.com/banner.png">img</a>` +
				`<a href="https://example.com/welcome">welcome</a>`,
		}}
		assert.Equal(t, "https://example.com/welcome", ExtractConfirmationLink(detail))
	})

	t.Run("empty mail yields no link", func(t *testing.T) {
		assert.Empty(t, ExtractConfirmationLink(MessageDetail{}))
	})

	t.Run("malformed ccUrl keeps the outer link", func(t *testing.T) {
		detail := MessageDetail{HTML: []string{
			`<a href="https://chayns.net/button?tappAction=cc&ccUrl=">Confirm</a>`,
		}}
		assert.Equal(t, "https://chayns.net/button?tappAction=cc&ccUrl=", ExtractConfirmationLink(detail))
	})
}

func TestIsVerificationLink(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://chayns.net/b?tappAction=cc&ccUrl=https%3A%2F%2Fx", true},
		{"https://CHAYNS.CC/login1/abc", true},
		{"https://login.chayns.net/x?code=9", true},
		{"https://other.example.com/x?code=9", false},
		{"https://chayns.de/", false},
		{"https://cdn.example.com/logo.png", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isVerificationLink(tc.url), tc.url)
	}
}
