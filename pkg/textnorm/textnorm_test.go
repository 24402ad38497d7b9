package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Đơn Hàng  của tôi", "don hang cua toi"},
		{"Nhắc tôi sau 10 phút", "nhac toi sau 10 phut"},
		{"  Track\tORD-AB12 ", "track ord-ab12"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fold(tt.in), tt.in)
	}
}

func TestEqualAndContains(t *testing.T) {
	assert.True(t, Equal("Dế Mèn Phiêu Lưu Ký", "de men phieu luu ky"))
	assert.False(t, Equal("Tắt đèn", "Số đỏ"))
	assert.True(t, Contains("Tôi nghĩ là Tắt Đèn!", "tat den"))
}

func TestTrim(t *testing.T) {
	assert.Equal(t, "Tắt đèn", Trim(` "Tắt đèn"?! `))
	assert.Equal(t, "", Trim("...!"))
}
